package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notifier/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification hub and REST API",
		Long: `Run the notification hub, the REST API and, when brokers are configured,
the Kafka domain-event ingest. Stops gracefully on SIGINT or SIGTERM.

Examples:
  NOTIFIER_AUTH_JWT_SECRET=dev notifier serve
  notifier serve --config notifier.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
}

func runServe(ctx context.Context, c *cli) error {
	defer func() { _ = c.logger.Sync() }()

	application, err := app.NewApplication(c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Signal handling ensures graceful shutdown in production environments
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("failed to start: %w", err)
	}

	<-ctx.Done()
	c.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
