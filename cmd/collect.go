package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/austat/austat/internal/agent/housing"
	"github.com/austat/austat/internal/collect"
)

var collectAgent string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect data from the RBA and ABS",
	Long: `Run the data collectors: RBA board minutes and statements, policy and
lending rates, and ABS housing and earnings series. Results are upserted, so
re-running is safe. A file lock prevents overlapping runs.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectAgent, "agent", housing.Name, "agent whose sources to collect")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if collectAgent != housing.Name {
		return fmt.Errorf("unknown agent %q", collectAgent)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	lock := flock.New(filepath.Join(home, ".austat", "collect.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring collection lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another collection run is in progress")
	}
	defer lock.Unlock()

	s, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	runner, err := collect.NewRunner(collect.RunnerConfig{
		AgentName:  collectAgent,
		Collectors: collect.Sources(s.Config.Collect, s.Logger),
		Metrics:    s.Metrics,
		Documents:  s.Documents,
		Runs:       s.Runs,
		Logger:     s.Logger,
	})
	if err != nil {
		return err
	}

	result, err := runner.Collect(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("collection %s: %d records in %s\n",
		result.Status, result.Records, result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	if result.Status == "failed" {
		return fmt.Errorf("collection failed")
	}
	return nil
}
