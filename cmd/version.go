package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/austat/austat/internal/config"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("austat %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.FullModelName())
	fmt.Printf("  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Printf("  RBA source: %s\n", cfg.Collect.RBABaseURL)
	fmt.Printf("  ABS source: %s\n", cfg.Collect.ABSBaseURL)

	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key != "" {
		fmt.Println("  API key: configured")
	} else {
		fmt.Println("  API key: not set (export GEMINI_API_KEY=your-api-key)")
	}
	return nil
}
