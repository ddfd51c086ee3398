package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// probeText is embedded to verify the embedding provider
const probeText = "whispernote connectivity check"

func (c *cli) newCheckCmd() *cobra.Command {
	var withLLM bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the index, embedding provider and language model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.localApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			status, err := a.Status(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			fmt.Fprintf(out, "Index (%s): %d files, %d chunks\n", c.cfg.Storage.Backend, status.FileCount, status.ChunkCount)

			start := time.Now()
			vectors, err := a.Embedder.Embed(ctx, []string{probeText})
			if err != nil {
				return fmt.Errorf("embedder: %w", err)
			}
			if len(vectors) != 1 || len(vectors[0]) == 0 {
				return fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
			}
			fmt.Fprintf(out, "Embedder: %s/%s, dimension %d (%s)\n",
				a.Embedder.Provider(), a.Embedder.Model(), len(vectors[0]), time.Since(start).Round(time.Millisecond))

			if !withLLM {
				return nil
			}
			model, err := a.Model()
			if err != nil {
				return err
			}
			start = time.Now()
			reply, err := model.Generate(ctx, "Reply with the single word OK.")
			if err != nil {
				return fmt.Errorf("language model: %w", err)
			}
			fmt.Fprintf(out, "Language model: %q (%s)\n", strings.TrimSpace(reply), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withLLM, "llm", false, "also send a short prompt to the language model")
	return cmd
}
