package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/whispernote/pkg/types"
)

func (c *cli) newQueryCmd() *cobra.Command {
	var (
		maxResults int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the AI a question",
		Long: `Answer a question from the indexed notes. With --debug the passages
used as context are shown after the answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.backend()
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			question := strings.Join(args, " ")
			result, err := b.Query(cmd.Context(), question, maxResults)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			c.printAnswer(cmd, result.Answer, result.Context)
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum number of passages used as context (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer and context as JSON")
	return cmd
}

func (c *cli) newChatCmd() *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.backend()
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			lines := readLines(ctx, c.stdin)
			fmt.Fprintln(out, "Type your question and press Enter. Type 'q' or Ctrl+C to end the session.")
			fmt.Fprintln(out)

			for {
				fmt.Fprint(out, promptStyle.Render("> "))
				var (
					question string
					ok       bool
				)
				select {
				case <-ctx.Done():
					fmt.Fprintln(out, "\nExiting chat.")
					return nil
				case question, ok = <-lines:
				}
				if !ok {
					fmt.Fprintln(out, "\nExiting chat.")
					return nil
				}

				question = strings.TrimSpace(question)
				switch strings.ToLower(question) {
				case "":
					continue
				case "q", "quit":
					fmt.Fprintln(out, "Exiting chat.")
					return nil
				}

				result, err := b.Query(ctx, question, maxResults)
				if err != nil {
					if ctx.Err() != nil {
						fmt.Fprintln(out, "\nExiting chat.")
						return nil
					}
					fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("Query failed: %v", err)))
					continue
				}
				fmt.Fprintln(out)
				c.printAnswer(cmd, result.Answer, result.Context)
				fmt.Fprintln(out)
			}
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum number of passages used as context (default from config)")
	return cmd
}

func (c *cli) printAnswer(cmd *cobra.Command, answer string, chunks []types.ContextChunk) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderAnswer(answer))
	if c.debug {
		for _, p := range renderContext(chunks) {
			fmt.Fprintln(out, p)
		}
	}
}

// readLines feeds lines from r into a channel that is closed at EOF, so a
// blocked read never delays cancellation.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
