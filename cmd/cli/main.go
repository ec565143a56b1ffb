package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/pspledger/internal/adapter/apiclient"
	"github.com/iho/pspledger/internal/infrastructure/config"
	"github.com/iho/pspledger/internal/infrastructure/logger"
)

// app holds what every command shares. The client is built lazily so that
// offline commands do not need a reachable API.
type app struct {
	cfg     *config.ClientConfig
	logger  zerolog.Logger
	baseURL string
	token   string
	actor   string
	timeout time.Duration

	client *apiclient.Client
	view   *apiclient.LedgerView
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	a := &app{
		cfg:    cfg,
		logger: logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr, Component: "cli"}),
	}
	if err := newRootCmd(a, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pspledger",
		Short:         "PSP ledger CLI",
		Long:          `A command line interface for the PSP ledger: monthly views, manual overrides, bulk allocations and the audit log.`,
		SilenceUsage:  true,
	}
	rootCmd.SetOut(out)

	defaultActor := os.Getenv("USER")
	rootCmd.PersistentFlags().StringVar(&a.baseURL, "url", a.cfg.APIURL, "Base URL of the ledger API")
	rootCmd.PersistentFlags().StringVar(&a.token, "token", a.cfg.SessionToken, "Session JWT")
	rootCmd.PersistentFlags().StringVar(&a.actor, "actor", defaultActor, "Actor name sent when authentication is disabled")
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", a.cfg.SyncTimeout, "Request timeout")

	rootCmd.AddCommand(
		newPSPCmd(a),
		newLedgerCmd(a),
		newOverrideCmd(a),
		newAllocationCmd(a),
		newAuditCmd(a),
		newSessionCmd(),
	)
	return rootCmd
}

func (a *app) apiClient() (*apiclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := apiclient.New(apiclient.Config{
		BaseURL:      a.baseURL,
		SessionToken: a.token,
		Actor:        a.actor,
		MaxAttempts:  a.cfg.SyncMaxAttempts,
		RetryDelay:   a.cfg.SyncRetryDelay,
		Timeout:      a.timeout,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.client = c
	a.view = apiclient.NewLedgerView(c, a.cfg.ViewTTL)
	return c, nil
}

func (a *app) ledgerView() (*apiclient.Client, *apiclient.LedgerView, error) {
	c, err := a.apiClient()
	if err != nil {
		return nil, nil, err
	}
	return c, a.view, nil
}

// actorName is the actor recorded client-side; the server substitutes the
// authenticated user when a session token is present.
func (a *app) actorName() string {
	if a.actor != "" {
		return a.actor
	}
	return "cli"
}
