// Package collect gathers Australian economic statistics from their
// publishers: board minutes and policy rates from the RBA site, and housing
// and earnings series from ABS data downloads. Collectors only fetch and
// parse; the Runner persists what they return and records the run.
package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/chunk"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
)

// Doc is one collected document with its section breakdown for chunking.
type Doc struct {
	Document store.Document
	Sections []chunk.Section
}

// Harvest is everything one collector produced in a run.
type Harvest struct {
	Points    []store.DataPoint
	Documents []Doc
}

// Collector fetches one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (*Harvest, error)
}

// MetricWriter persists data points. *store.MetricStore satisfies it.
type MetricWriter interface {
	UpsertPoint(ctx context.Context, p store.DataPoint) error
}

// DocumentWriter persists documents. *store.DocumentStore satisfies it.
type DocumentWriter interface {
	Save(ctx context.Context, doc *store.Document, sections []chunk.Section) error
}

// RunRecorder records collection runs. *store.RunStore satisfies it.
type RunRecorder interface {
	StartRun(ctx context.Context, agentName string) (uuid.UUID, error)
	FinishRun(ctx context.Context, id uuid.UUID, status string, records int, errs []string) error
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// AgentName attributes the recorded run.
	AgentName string

	Collectors []Collector
	Metrics    MetricWriter
	Documents  DocumentWriter
	Runs       RunRecorder
	Logger     log.Logger
}

// Runner executes collectors sequentially. One failing source never aborts
// the others; its error is captured and the run is marked partial.
type Runner struct {
	agentName  string
	collectors []Collector
	metrics    MetricWriter
	documents  DocumentWriter
	runs       RunRecorder
	logger     log.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Collectors) == 0 {
		return nil, fmt.Errorf("collect: no collectors configured")
	}
	if cfg.Metrics == nil || cfg.Documents == nil || cfg.Runs == nil {
		return nil, fmt.Errorf("collect: metrics, documents, and runs stores are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Runner{
		agentName:  cfg.AgentName,
		collectors: cfg.Collectors,
		metrics:    cfg.Metrics,
		documents:  cfg.Documents,
		runs:       cfg.Runs,
		logger:     logger,
	}, nil
}

// Collect runs every collector and persists the harvest. The returned result
// mirrors what was recorded in the collection_runs table.
func (r *Runner) Collect(ctx context.Context) (*agent.CollectionResult, error) {
	started := time.Now()
	runID, err := r.runs.StartRun(ctx, r.agentName)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	var (
		records   int
		errs      []string
		succeeded int
		failed    int
	)
	for _, c := range r.collectors {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", c.Name(), err))
			failed++
			continue
		}

		harvest, err := c.Collect(ctx)
		if err != nil {
			r.logger.Error("source collection failed", "source", c.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", c.Name(), err))
			failed++
			continue
		}

		saved, saveErrs := r.persist(ctx, harvest)
		records += saved
		if len(saveErrs) > 0 {
			for _, e := range saveErrs {
				errs = append(errs, fmt.Sprintf("%s: %v", c.Name(), e))
			}
			failed++
			continue
		}
		succeeded++
		r.logger.Info("source collected", "source", c.Name(), "records", saved)
	}

	status := agent.StatusFor(succeeded, failed)
	if err := r.runs.FinishRun(ctx, runID, status, records, errs); err != nil {
		r.logger.Error("run record update failed", "run_id", runID, "error", err)
	}

	return &agent.CollectionResult{
		Status:      status,
		Records:     records,
		Errors:      errs,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}, nil
}

func (r *Runner) persist(ctx context.Context, h *Harvest) (int, []error) {
	var errs []error
	saved := 0
	for _, p := range h.Points {
		if err := r.metrics.UpsertPoint(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("point %s %s: %w", p.MetricName, p.Period, err))
			continue
		}
		saved++
	}
	for i := range h.Documents {
		d := &h.Documents[i]
		if err := r.documents.Save(ctx, &d.Document, d.Sections); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", d.Document.ExternalID, err))
			continue
		}
		saved++
	}
	return saved, errs
}
