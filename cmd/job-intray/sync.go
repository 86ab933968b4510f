/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command with explicit dependencies.
func NewSyncCmd(client jobClient) *cobra.Command {
	if client == nil {
		panic("NewSyncCmd: client dependency cannot be nil")
	}

	var (
		itemID string
		detach bool
	)
	syncCmd := &cobra.Command{
		Use:   consumer.PlaidSync.Name + " --item <id>",
		Short: "Sync transactions from a linked bank",
		Long: `Start a bank sync for a linked Plaid item and wait for it to finish.

USAGE:
    job-intray sync --item <id> [--detach]

OPTIONS:
    --item <id>    Linked bank item to sync
    --detach       Print the job id and return without waiting
    -h, --help     Show this help`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runJob(c, client, consumer.PlaidSync, consumer.Request{ItemID: itemID}, detach)
		},
	}
	syncCmd.Flags().StringVar(&itemID, "item", "", "Linked bank item to sync")
	syncCmd.Flags().BoolVar(&detach, "detach", false, "Print the job id and return without waiting")
	return syncCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewSyncCmd(defaultApp))
}
