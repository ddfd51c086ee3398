package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/whispernote/internal/api"
	"github.com/dshills/whispernote/internal/indexer"
)

// defaultExtensions is used when neither --ext nor notes.extensions is set
var defaultExtensions = []string{".txt", ".md"}

func (c *cli) newIndexCmd() *cobra.Command {
	var (
		extensions []string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "index [directory]",
		Short: "Index a directory of files",
		Long: `Index every matching file under directory. Files whose content has not
changed since the last run are skipped. The directory defaults to
notes.directory from the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.notesDir(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ext") {
				extensions = c.extensions()
			}

			b, err := c.backend()
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			metrics, err := b.IndexDirectory(cmd.Context(), dir, extensions)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			return printMetrics(cmd, metrics, asJSON)
		},
	}
	cmd.Flags().StringSliceVarP(&extensions, "ext", "e", nil, "file extensions to include, repeatable (default .txt,.md)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output metrics as JSON")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current status of the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.backend()
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			metrics, err := b.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to retrieve index status: %w", err)
			}
			return printMetrics(cmd, metrics, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output metrics as JSON")
	return cmd
}

// notesDir returns the directory argument or the configured one, made
// absolute so a remote server resolves it the same way.
func (c *cli) notesDir(args []string) (string, error) {
	dir := c.cfg.Notes.Directory
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return "", errors.New("no directory given and notes.directory is not configured")
	}
	return filepath.Abs(dir)
}

func (c *cli) extensions() []string {
	if len(c.cfg.Notes.Extensions) > 0 {
		return c.cfg.Notes.Extensions
	}
	return defaultExtensions
}

func printMetrics(cmd *cobra.Command, m indexer.Metrics, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(api.NewMetricsResponse(m), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMetrics(m))
	return nil
}
