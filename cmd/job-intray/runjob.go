package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/console"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/spf13/cobra"
)

type jobClient interface {
	Store() (*notification.Store, error)
	StartJob(ctx context.Context, kind consumer.Kind, req consumer.Request) (*consumer.Handle, error)
	Shutdown()
}

// runJob starts one job, prints its notifications and waits for the outcome.
// With detach it prints the job id and stops tracking right away.
func runJob(c *cobra.Command, client jobClient, kind consumer.Kind, req consumer.Request, detach bool) error {
	store, err := client.Store()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c)
	defer stop()

	printer := console.NewPrinter(store)
	printed := make(chan struct{})
	go func() {
		printer.Run(context.Background())
		close(printed)
	}()
	// Closing the subscription still delivers buffered events, so every
	// notification published before shutdown gets printed.
	finish := func() {
		client.Shutdown()
		printer.Close()
		<-printed
	}

	handle, err := client.StartJob(ctx, kind, req)
	if err != nil {
		finish()
		return cmd.Reported(err)
	}

	if detach {
		handle.Cancel()
		handle.Wait()
		finish()
		fmt.Fprintf(c.OutOrStdout(), "%s %s\n", handle.Job.Type, handle.Job.ID)
		return nil
	}

	var out jobs.Outcome
	select {
	case <-handle.Done():
		out = handle.Wait()
	case <-ctx.Done():
		handle.Cancel()
		out = handle.Wait()
	}
	finish()
	return outcomeError(out)
}

func signalContext(c *cobra.Command) (context.Context, context.CancelFunc) {
	parent := c.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// outcomeError turns an unsuccessful outcome into the command's error.
func outcomeError(out jobs.Outcome) error {
	switch out.Result {
	case jobs.ResultFinished:
		return nil
	case jobs.ResultCancelled:
		colors.Info(fmt.Sprintf("Stopped tracking %s; it keeps running on the server.", out.Job.ID))
		colors.Info(fmt.Sprintf("Resume with: job-intray watch --resume %s=%s", out.Job.Type, out.Job.ID))
		return nil
	case jobs.ResultStale:
		return nil
	default:
		return cmd.Reported(fmt.Errorf("%s %s: %s", out.Job.Type, out.Result, out.Message))
	}
}
