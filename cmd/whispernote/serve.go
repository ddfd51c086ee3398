package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/whispernote/internal/api"
	"github.com/dshills/whispernote/internal/mcp"
	"github.com/dshills/whispernote/internal/watcher"
)

func (c *cli) newServeCmd() *cobra.Command {
	var (
		addr  string
		watch bool
		noMCP bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the index over HTTP:

  GET  /api/v1/health
  POST /api/v1/index   {"directory": "...", "file_extensions": [".md"]}
  GET  /api/v1/index
  POST /api/v1/query   {"query": "...", "max_results": 5}

The MCP tools are also served over streamable HTTP at /mcp. With --watch
the configured notes directory is kept in sync while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.cfg.Server.Addr
			}

			a, err := c.localApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var opts []api.Option
			if !noMCP {
				opts = append(opts, api.WithHandler("/mcp", mcp.NewServer(a, c.logger).HTTPHandler()))
			}
			server := api.NewServer(a, addr, c.logger, opts...)

			var (
				w   *watcher.Watcher
				dir string
			)
			if watch {
				if dir, err = c.notesDir(nil); err != nil {
					return err
				}
				if w, err = c.newWatcher(cmd, a, c.extensions()); err != nil {
					return err
				}
				defer func() { _ = w.Close() }()
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return server.Run(ctx) })
			if w != nil {
				g.Go(func() error { return w.Run(ctx, dir) })
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", addr)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8000)")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch notes.directory and re-index changes")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "do not serve MCP at /mcp")
	return cmd
}

func (c *cli) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Start the Model Context Protocol server on stdio for AI assistants.

Client configuration:
  {
    "mcpServers": {
      "whispernote": {
        "command": "/path/to/whispernote",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.localApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return mcp.NewServer(a, c.logger).Serve(cmd.Context())
		},
	}
}
