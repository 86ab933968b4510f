/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/spf13/cobra"
)

type statusClient interface {
	JobStatus(ctx context.Context, jobID string) (jobs.Status, error)
}

// NewStatusCmd creates the status command with explicit dependencies.
func NewStatusCmd(client statusClient) *cobra.Command {
	if client == nil {
		panic("NewStatusCmd: client dependency cannot be nil")
	}

	statusCmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current status of a job",
		Long: `Fetch the status of a backend job once and print it.

USAGE:
    job-intray status <job-id>

OPTIONS:
    -h, --help     Show this help`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			status, err := client.JobStatus(c.Context(), args[0])
			if errors.Is(err, jobs.ErrJobNotFound) {
				colors.Warning(fmt.Sprintf("job %s expired or was removed", args[0]))
				return cmd.Reported(err)
			}
			if err != nil {
				return err
			}
			printStatus(c.OutOrStdout(), args[0], status)
			return nil
		},
	}
	return statusCmd
}

func printStatus(w io.Writer, jobID string, status jobs.Status) {
	phase := jobs.Classify(status)
	fmt.Fprintf(w, "job:    %s\n", jobID)
	fmt.Fprintf(w, "status: %s (%s)\n", status.Status, phase)
	if stage := status.Stage(); stage != "" {
		line := "stage:  " + stage
		if status.Meta.Progress != nil {
			line += fmt.Sprintf(" (%.0f%%)", *status.Meta.Progress)
		}
		fmt.Fprintln(w, line)
	}
	if phase == jobs.PhaseFailed {
		fmt.Fprintf(w, "error:  %s\n", jobs.FailureMessage(status, jobs.Verbatim))
	}
	if len(status.Result) > 0 && strings.TrimSpace(string(status.Result)) != "null" {
		fmt.Fprintf(w, "result: %s\n", strings.TrimSpace(string(status.Result)))
	}
}

func init() {
	cmd.RootCmd.AddCommand(NewStatusCmd(defaultApp))
}
