// Package cmd contains the oracle CLI commands.
//
// Following the pattern used by kubectl, hugo, and other standard Go
// CLI tools, all application logic lives here, leaving main.go as a
// minimal entry point. Subcommands register themselves in their own
// files via init().
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jellycore/oracle/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Oracle - personal knowledge engine",
	Long: `Oracle is a personal-AI knowledge engine. It ingests documents into a
hybrid full-text + vector store, classifies queries to balance lexical
and semantic retrieval, and maintains layered memory (working, semantic,
episodic, procedural, and a per-user model) with time-based decay.

Run "oracle serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG (any value) enables
// debug-level output.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}
