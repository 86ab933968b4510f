/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/cristianoliveira/job-intray/internal/tui"
	"github.com/cristianoliveira/job-intray/internal/tui/state"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

type watchClient interface {
	Store() (*notification.Store, error)
	StartJob(ctx context.Context, kind consumer.Kind, req consumer.Request) (*consumer.Handle, error)
	AdoptJob(jobType, jobID string) (*consumer.Handle, error)
	ResumeJobs()
	DiscardJob(jobType string)
	MetricsHandler() (http.Handler, error)
	Shutdown()
}

// runTUI is swapped in tests.
var runTUI = tui.Run

// NewWatchCmd creates the watch command with explicit dependencies.
func NewWatchCmd(client watchClient) *cobra.Command {
	if client == nil {
		panic("NewWatchCmd: client dependency cannot be nil")
	}

	var (
		resume      []string
		metricsAddr string
		itemID      string
	)
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the notification view",
		Long: `Open the interactive notification view.

USAGE:
    job-intray watch [OPTIONS]

OPTIONS:
    --resume <type>=<id>    Follow a job started earlier (repeatable)
    --item <id>             Bank item synced by the "s" key
    --metrics-addr <addr>   Serve Prometheus metrics on addr (e.g. :9090)
    -h, --help              Show this help

KEYS:
    j       toggle the running jobs dialog
    d       dismiss the selected notification
    enter   run the notification action
    c       stop tracking the selected job
    x       clear all notifications
    s       start a bank sync
    q       quit`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			store, err := client.Store()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c)
			defer stop()
			defer client.Shutdown()

			for _, r := range resume {
				jobType, jobID, err := parseResume(r)
				if err != nil {
					return err
				}
				if _, err := client.AdoptJob(jobType, jobID); err != nil && !errors.Is(err, consumer.ErrAlreadyRunning) {
					colors.Warning(fmt.Sprintf("cannot resume %s: %v", r, err))
				}
			}

			client.ResumeJobs()

			if metricsAddr != "" {
				_, shutdown, err := serveMetrics(client, metricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			opts := []state.Option{state.WithClearJob(client.DiscardJob)}
			if itemID != "" {
				opts = append(opts, state.WithSync(func(ctx context.Context) error {
					_, err := client.StartJob(ctx, consumer.PlaidSync, consumer.Request{ItemID: itemID})
					return err
				}))
			}
			// JSON lines on stderr would corrupt the alt screen.
			colors.DisableStructuredLogging()
			defer colors.EnableStructuredLogging()
			return runTUI(ctx, store, opts...)
		},
	}
	watchCmd.Flags().StringArrayVar(&resume, "resume", nil, "Follow a job started earlier, as <type>=<id>")
	watchCmd.Flags().StringVar(&itemID, "item", "", "Bank item synced by the s key")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return watchCmd
}

func parseResume(value string) (string, string, error) {
	jobType, jobID, ok := strings.Cut(value, "=")
	jobType, jobID = strings.TrimSpace(jobType), strings.TrimSpace(jobID)
	if !ok || jobType == "" || jobID == "" {
		return "", "", fmt.Errorf("invalid --resume value %q: expected <type>=<id>", value)
	}
	return jobType, jobID, nil
}

// serveMetrics binds addr before the view starts so a bad address fails the
// command. Later errors go to the log file. It returns the bound address.
func serveMetrics(client watchClient, addr string) (string, func(), error) {
	handler, err := client.MetricsHandler()
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	r := chi.NewRouter()
	r.Handle("/metrics", handler)

	log := logging.GetGlobal().With("component", "metrics")
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err.Error())
		}
	}()
	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", "error", err.Error())
		}
	}, nil
}

func init() {
	cmd.RootCmd.AddCommand(NewWatchCmd(defaultApp))
}
