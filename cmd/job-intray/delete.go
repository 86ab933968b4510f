/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/spf13/cobra"
)

// confirmDelete asks before a bulk delete. Tests replace it.
var confirmDelete = func(count int) (bool, error) {
	confirmed := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Delete %d transaction(s)?", count)).
		Description("This cannot be undone.").
		Affirmative("Delete").
		Negative("Cancel").
		Value(&confirmed).
		Run()
	return confirmed, err
}

// NewDeleteCmd creates the delete command with explicit dependencies.
func NewDeleteCmd(client jobClient) *cobra.Command {
	if client == nil {
		panic("NewDeleteCmd: client dependency cannot be nil")
	}

	var (
		yes    bool
		detach bool
	)
	deleteCmd := &cobra.Command{
		Use:   consumer.BulkDelete.Name + " <transaction-id>...",
		Short: "Delete transactions in bulk",
		Long: `Delete the given transactions in one background job.

USAGE:
    job-intray delete <transaction-id>... [--yes] [--detach]

OPTIONS:
    -y, --yes      Skip the confirmation prompt
    --detach       Print the job id and return without waiting
    -h, --help     Show this help`,
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) > 0 && !yes {
				ok, err := confirmDelete(len(args))
				if err != nil {
					return fmt.Errorf("confirmation: %w", err)
				}
				if !ok {
					colors.Info("Delete cancelled")
					return nil
				}
			}
			return runJob(c, client, consumer.BulkDelete, consumer.Request{TransactionIDs: args}, detach)
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	deleteCmd.Flags().BoolVar(&detach, "detach", false, "Print the job id and return without waiting")
	return deleteCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewDeleteCmd(defaultApp))
}
