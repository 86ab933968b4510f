/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/api/fakebackend"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/spf13/cobra"
)

// NewDevBackendCmd creates the dev-backend command.
func NewDevBackendCmd() *cobra.Command {
	var (
		addr  string
		token string
	)
	devCmd := &cobra.Command{
		Use:   "dev-backend",
		Short: "Serve a scripted backend for local runs",
		Long: `Serve an in-memory backend whose jobs walk through scripted
progressions. Point api_base_url at it to try the other commands.

USAGE:
    job-intray dev-backend [--addr :8000] [--token <token>]

OPTIONS:
    --addr <addr>      Listen address (default: 127.0.0.1:8000)
    --token <token>    Require this bearer token
    -h, --help         Show this help`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			var opts []fakebackend.Option
			if token != "" {
				opts = append(opts, fakebackend.WithToken(token))
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           fakebackend.New(opts...).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signalContext(c)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			colors.Info(fmt.Sprintf("dev backend listening on %s", addr))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	devCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	devCmd.Flags().StringVar(&token, "token", "", "Require this bearer token")
	return devCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewDevBackendCmd())
}
