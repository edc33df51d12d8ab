// Package main is the entrypoint for the OTP fetcher service.
// It serves the HTTP API and, when a bot token is configured, the Telegram
// chat commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aelexs/otp-fetcher/internal/auth"
	"github.com/aelexs/otp-fetcher/internal/config"
	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/server"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "otpfetcher",
		Short: "Rent virtual numbers and fetch one-time codes for chat users",
		Long: `otpfetcher keeps one OTP session per user: it rents a number from the
configured provider, polls for the verification code and reports back over
the HTTP API or Telegram. Configuration comes from OTPF_* environment
variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCmd(), newTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and chat transports until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return server.Run(cmd.Context(), server.Params{
				Name:           "otpfetcher",
				Version:        version,
				PortFromConfig: func(cfg *config.Config) int { return cfg.HTTP.Port },
				Setup:          setup,
			}, nil)
		},
	}
}

// newTokenCmd mints an access token for the HTTP API with the configured
// signing secret. It is meant for operators and local development.
func newTokenCmd() *cobra.Command {
	var (
		user  string
		scope string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HTTP API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			secret, err := jwtSecret(cfg)
			if err != nil {
				return err
			}
			minter := auth.NewMinter(auth.MinterConfig{
				Secret:    secret,
				AccessTTL: domain.AccessTokenLifetime,
				Issuer:    cfg.Auth.Issuer,
				Audience:  cfg.Auth.Audience,
				Clock:     domain.RealClock{},
			})
			res, err := minter.MintAccessToken(user, scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user identifier carried in the sub claim (required)")
	cmd.Flags().StringVar(&scope, "scope", auth.ScopeUser, `space-separated scopes, e.g. "otp admin"`)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
