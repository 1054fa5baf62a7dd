// Package cmd implements the austat command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/austat/austat/db"
	"github.com/austat/austat/internal/app"
	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/database"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "austat",
	Short: "Australian economic statistics assistant",
	Long: `austat answers questions about Australian economic statistics: housing,
lending, mortgage rates, affordability, and RBA policy. Specialized agents
collect the data from the RBA and ABS and ground every answer in it.

Running austat with no arguments starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment switches to
// debug level. Logs go to stderr so command output stays clean.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, cfg)
}

// setupApp performs full initialization: config, tracing, database, model.
// Commands that talk to the model go through here.
func setupApp(ctx context.Context) (*app.App, log.Logger, error) {
	logger := initLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

// stores bundles the persistence layer for commands that need the database
// but not the model (threads, collect).
type stores struct {
	Pool      *pgxpool.Pool
	Threads   *store.ThreadStore
	Metrics   *store.MetricStore
	Documents *store.DocumentStore
	Runs      *store.RunStore

	Config *config.Config
	Logger log.Logger
}

func (s *stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func openStores(ctx context.Context) (*stores, error) {
	logger := initLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}

	s := &stores{Pool: pool, Config: cfg, Logger: logger}
	if s.Threads, err = store.NewThreadStore(pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	if s.Metrics, err = store.NewMetricStore(pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	if s.Documents, err = store.NewDocumentStore(store.DocumentStoreConfig{
		DB:           pool,
		Logger:       logger,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}); err != nil {
		pool.Close()
		return nil, err
	}
	if s.Runs, err = store.NewRunStore(pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}
