/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/journal"
	"github.com/spf13/cobra"
)

type historyClient interface {
	History(ctx context.Context, opts journal.ListOptions) ([]journal.Entry, error)
}

// NewHistoryCmd creates the history command with explicit dependencies.
func NewHistoryCmd(client historyClient) *cobra.Command {
	if client == nil {
		panic("NewHistoryCmd: client dependency cannot be nil")
	}

	var (
		limit   int
		jobType string
		raw     bool
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show how recent jobs ended",
		Long: `Show the journal of finished, failed and expired jobs, newest first.

USAGE:
    job-intray history [--limit N] [--type <job-type>] [--raw]

OPTIONS:
    --limit N            Number of entries (default: 20)
    --type <job-type>    Only show one job type
    --raw                Print markdown without styling
    -h, --help           Show this help`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			entries, err := client.History(c.Context(), journal.ListOptions{Limit: limit, JobType: jobType})
			if err != nil {
				return err
			}
			md := journal.Markdown(entries)
			if raw {
				fmt.Fprint(c.OutOrStdout(), md)
				return nil
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
			if err != nil {
				return fmt.Errorf("creating renderer: %w", err)
			}
			out, err := r.Render(md)
			if err != nil {
				return fmt.Errorf("rendering history: %w", err)
			}
			fmt.Fprint(c.OutOrStdout(), out)
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	historyCmd.Flags().StringVar(&jobType, "type", "", "Only show one job type")
	historyCmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without styling")
	return historyCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewHistoryCmd(defaultApp))
}
