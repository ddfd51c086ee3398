package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dshills/whispernote/internal/app"
	"github.com/dshills/whispernote/internal/watcher"
)

func (c *cli) newWatchCmd() *cobra.Command {
	var (
		extensions []string
		skipIndex  bool
	)
	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Keep the index in sync with a directory",
		Long: `Index directory, then watch it and its subdirectories. Created and
modified files are re-indexed and deleted files are removed from the index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.notesDir(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ext") {
				extensions = c.extensions()
			}

			a, err := c.localApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !skipIndex {
				metrics, err := a.IndexDirectory(cmd.Context(), dir, extensions)
				if err != nil {
					return fmt.Errorf("indexing failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderMetrics(metrics))
			}

			w, err := c.newWatcher(cmd, a, extensions)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", dir)
			return w.Run(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringSliceVarP(&extensions, "ext", "e", nil, "file extensions to include, repeatable (default .txt,.md)")
	cmd.Flags().BoolVar(&skipIndex, "no-initial-index", false, "skip indexing the directory before watching")
	return cmd
}

// newWatcher creates a watcher that prints one line per processed file
func (c *cli) newWatcher(cmd *cobra.Command, a *app.App, extensions []string) (*watcher.Watcher, error) {
	var mu sync.Mutex
	out := cmd.OutOrStdout()
	a.Config.Notes.Extensions = extensions
	return a.NewWatcher(func(ev watcher.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case ev.Err != nil:
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("failed %s: %v", ev.Path, ev.Err)))
		case ev.Removed && ev.Dir:
			fmt.Fprintf(out, "removed %s (%d files)\n", ev.Path, ev.Files)
		case ev.Removed:
			fmt.Fprintf(out, "removed %s\n", ev.Path)
		case ev.Metrics.Failed() > 0:
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("failed %s: %s", ev.Path, ev.Metrics.FailedFiles[0].Error)))
		case ev.Metrics.FileCount > 0:
			fmt.Fprintf(out, "indexed %s (%d chunks)\n", ev.Path, ev.Metrics.ChunkCount)
		}
	})
}
