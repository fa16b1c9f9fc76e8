package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jellycore/oracle/db"
	"github.com/jellycore/oracle/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies the embedded schema migrations to the configured PostgreSQL
database. "oracle serve" runs migrations automatically on startup; this
command exists for deployments that migrate separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}
