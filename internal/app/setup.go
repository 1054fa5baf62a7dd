package app

import (
	"context"
	"fmt"

	"github.com/austat/austat/db"
	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/agent/housing"
	"github.com/austat/austat/internal/collect"
	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/database"
	"github.com/austat/austat/internal/llm"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/observability"
	"github.com/austat/austat/internal/orchestrator"
	"github.com/austat/austat/internal/store"
	"github.com/austat/austat/internal/tools"
)

// Setup builds the application from configuration. On error everything
// already initialized is released; on success the caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during failed setup", "error", err)
			}
		}
	}()

	// Tracing first: Genkit registers its spans on the provider during Init.
	traceShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}
	a.traceShutdown = traceShutdown

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := llm.Init(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	client, err := llm.New(llm.Config{
		Genkit:            g,
		Logger:            logger,
		Temperature:       float64(cfg.Temperature),
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}
	a.LLM = client

	if err := a.buildStores(); err != nil {
		return nil, err
	}

	adhoc, err := store.NewAdhoc(pool, logger)
	if err != nil {
		return nil, err
	}
	kit, err := tools.New(tools.Config{
		Genkit:    g,
		Metrics:   a.Metrics,
		Documents: a.Documents,
		Adhoc:     adhoc,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tool kit: %w", err)
	}
	a.Kit = kit

	a.Registry = agent.NewRegistry()
	if err := a.Registry.RegisterFactory(housing.Name, a.housingFactory()); err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Generator:            client,
		Threads:              a.Threads,
		Registry:             a.Registry,
		Logger:               logger,
		ModelName:            cfg.FullModelName(),
		FreshThreadThreshold: cfg.FreshThreadThreshold,
		MultiAgentThreshold:  cfg.MultiAgentThreshold,
		TopicMaxLen:          cfg.TopicMaxLen,
	})
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orch

	logger.Info("application ready",
		"model", cfg.FullModelName(),
		"agents", a.Registry.Names())
	return a, nil
}

func (a *App) buildStores() error {
	threads, err := store.NewThreadStore(a.Pool, a.Logger)
	if err != nil {
		return err
	}
	metrics, err := store.NewMetricStore(a.Pool, a.Logger)
	if err != nil {
		return err
	}
	documents, err := store.NewDocumentStore(store.DocumentStoreConfig{
		DB:           a.Pool,
		Logger:       a.Logger,
		ChunkSize:    a.Config.ChunkSize,
		ChunkOverlap: a.Config.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	runs, err := store.NewRunStore(a.Pool, a.Logger)
	if err != nil {
		return err
	}
	a.Threads = threads
	a.Metrics = metrics
	a.Documents = documents
	a.Runs = runs
	return nil
}

// housingFactory defers agent construction until first use. The collector
// runner is built alongside so `austat collect` reaches the same sources.
func (a *App) housingFactory() agent.Factory {
	return func() (agent.Agent, error) {
		runner, err := collect.NewRunner(collect.RunnerConfig{
			AgentName:  housing.Name,
			Collectors: collect.Sources(a.Config.Collect, a.Logger),
			Metrics:    a.Metrics,
			Documents:  a.Documents,
			Runs:       a.Runs,
			Logger:     a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("housing collectors: %w", err)
		}
		h, err := housing.New(housing.Config{
			Generator:    a.LLM,
			Kit:          a.Kit,
			Documents:    a.Documents,
			Collector:    runner,
			Logger:       a.Logger,
			ModelName:    a.Config.FullModelName(),
			MaxToolTurns: a.Config.MaxToolTurns,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}
