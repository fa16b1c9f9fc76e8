package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jellycore/oracle/internal/api"
	"github.com/jellycore/oracle/internal/app"
	"github.com/jellycore/oracle/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and starts the HTTP API server.
// It blocks until SIGINT/SIGTERM, then shuts down gracefully.
func runServe() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting oracle", "version", AppVersion, "provider", cfg.Provider)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	opts := api.Options{
		RatePerSec: cfg.RatePerSec,
		RateBurst:  cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
	}
	if a.NLP != nil {
		opts.Sidecar = a.NLP
	}

	srv := api.NewServer(a.DBPool, a.Documents, a.UserModels, a.Procedures, a.Episodes, opts, logger)

	return srv.Run(ctx, cfg.ListenAddr)
}
