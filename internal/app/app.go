// Package app assembles the application: configuration, tracing, database,
// model client, stores, tools, agents, and the orchestrator, in dependency
// order with cleanup on failure.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/llm"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/orchestrator"
	"github.com/austat/austat/internal/store"
	"github.com/austat/austat/internal/tools"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool
	LLM    *llm.Client

	Threads   *store.ThreadStore
	Metrics   *store.MetricStore
	Documents *store.DocumentStore
	Runs      *store.RunStore

	Kit          *tools.Kit
	Registry     *agent.Registry
	Orchestrator *orchestrator.Orchestrator

	traceShutdown func(context.Context) error
}

// Close releases resources: flushes pending trace spans, then closes the
// database pool.
func (a *App) Close() error {
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.traceShutdown(ctx); err != nil {
			a.Logger.Warn("trace flush on shutdown failed", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}
