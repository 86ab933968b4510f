/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/spf13/cobra"
)

// NewImportStatementCmd creates the import-statement command with explicit dependencies.
func NewImportStatementCmd(client jobClient) *cobra.Command {
	if client == nil {
		panic("NewImportStatementCmd: client dependency cannot be nil")
	}

	var detach bool
	importCmd := &cobra.Command{
		Use:   consumer.StatementProcessing.Name + " <statement-id>",
		Short: "Process an uploaded bank statement",
		Long: `Process an uploaded statement into transactions. Several statements
can be processed at the same time.

USAGE:
    job-intray import-statement <statement-id> [--detach]

OPTIONS:
    --detach       Print the job id and return without waiting
    -h, --help     Show this help`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runJob(c, client, consumer.StatementProcessing, consumer.Request{StatementID: args[0]}, detach)
		},
	}
	importCmd.Flags().BoolVar(&detach, "detach", false, "Print the job id and return without waiting")
	return importCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewImportStatementCmd(defaultApp))
}
