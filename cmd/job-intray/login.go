/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/cristianoliveira/job-intray/cmd"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/credential"
	"github.com/spf13/cobra"
)

type credentialClient interface {
	SaveToken(token string) error
	DeleteToken() error
}

// promptToken asks for the token when --token is not given. Tests replace it.
var promptToken = func() (string, error) {
	var token string
	err := huh.NewInput().
		Title("API token").
		EchoMode(huh.EchoModePassword).
		Value(&token).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("token is required")
			}
			return nil
		}).
		Run()
	return token, err
}

// NewLoginCmd creates the login command with explicit dependencies.
func NewLoginCmd(client credentialClient) *cobra.Command {
	if client == nil {
		panic("NewLoginCmd: client dependency cannot be nil")
	}

	var token string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token in the system keyring",
		Long: `Store the backend API token in the system keyring. The ` + credential.TokenEnv + `
environment variable takes precedence when set.

USAGE:
    job-intray login [--token <token>]

OPTIONS:
    --token <token>    Token to store (prompted when omitted)
    -h, --help         Show this help`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			value := strings.TrimSpace(token)
			if value == "" {
				prompted, err := promptToken()
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				value = strings.TrimSpace(prompted)
			}
			if value == "" {
				return errors.New("token is required")
			}
			if err := client.SaveToken(value); err != nil {
				return err
			}
			colors.Success("API token saved")
			return nil
		},
	}
	loginCmd.Flags().StringVar(&token, "token", "", "Token to store")
	return loginCmd
}

// NewLogoutCmd creates the logout command with explicit dependencies.
func NewLogoutCmd(client credentialClient) *cobra.Command {
	if client == nil {
		panic("NewLogoutCmd: client dependency cannot be nil")
	}

	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the API token from the system keyring",
		Long:  `Remove the backend API token from the system keyring.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			err := client.DeleteToken()
			if errors.Is(err, credential.ErrNotFound) {
				colors.Info("No API token stored")
				return nil
			}
			if err != nil {
				return err
			}
			colors.Success("API token removed")
			return nil
		},
	}
}

func init() {
	cmd.RootCmd.AddCommand(NewLoginCmd(defaultApp), NewLogoutCmd(defaultApp))
}
