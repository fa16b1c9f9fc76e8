package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jellycore/oracle/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Oracle %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version must work even with a broken config.
		fmt.Println()
		fmt.Printf("Configuration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Embedder: %s (v%d)\n", cfg.EmbedderModel, cfg.EmbedderVersion)
	fmt.Printf("  Database: %s@%s:%d/%s\n",
		cfg.PostgresUser, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Printf("  Listen: %s\n", cfg.ListenAddr)

	if cfg.Provider == config.ProviderGemini {
		key := os.Getenv("GEMINI_API_KEY")
		if key != "" {
			fmt.Println("  GEMINI_API_KEY: configured")
		} else {
			fmt.Println("  GEMINI_API_KEY: not set")
		}
	}
	return nil
}
