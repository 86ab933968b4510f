/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/spf13/cobra"
)

// NewConvertCmd creates the convert command with explicit dependencies.
func NewConvertCmd(client jobClient) *cobra.Command {
	if client == nil {
		panic("NewConvertCmd: client dependency cannot be nil")
	}

	var detach bool
	convertCmd := &cobra.Command{
		Use:   consumer.Conversion.Name + " <transaction-id>...",
		Short: "Convert transactions into expenses",
		Long: `Convert the given transactions into expenses and wait for the result.

USAGE:
    job-intray convert <transaction-id>... [--detach]

OPTIONS:
    --detach       Print the job id and return without waiting
    -h, --help     Show this help`,
		RunE: func(c *cobra.Command, args []string) error {
			return runJob(c, client, consumer.Conversion, consumer.Request{TransactionIDs: args}, detach)
		},
	}
	convertCmd.Flags().BoolVar(&detach, "detach", false, "Print the job id and return without waiting")
	return convertCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewConvertCmd(defaultApp))
}
