package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipsocial/social-api/internal/app"
	"github.com/clipsocial/social-api/internal/infrastructure/config"
	"github.com/clipsocial/social-api/pkg/logger"
)

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	serve := NewServeCmd()

	cmd := &cobra.Command{
		Use:          "social-api",
		Short:        "Social API - credential-based authentication service",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(NewHealthcheckCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Configuration is read from the environment;
JWT_SECRET is required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	return a.Run(ctx)
}

// healthcheckConfig holds flags for the healthcheck command.
type healthcheckConfig struct {
	url     string
	timeout time.Duration
}

// NewHealthcheckCmd creates the healthcheck subcommand. It exits non-zero
// unless the liveness endpoint answers 200, which makes it usable as a
// container HEALTHCHECK without curl in the image.
func NewHealthcheckCmd() *cobra.Command {
	cfg := &healthcheckConfig{}

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server's liveness endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := probe(cmd.Context(), cfg); err != nil {
				return err
			}
			cmd.Println("ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.url, "url", "http://localhost:8080/health", "liveness endpoint to probe")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 3*time.Second, "request timeout")

	return cmd
}

func probe(ctx context.Context, cfg *healthcheckConfig) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", cfg.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: unexpected status %d", cfg.url, resp.StatusCode)
	}
	return nil
}
