// Package tools provides the read-only tool catalogue the housing agent
// exposes to the model.
//
// Tools live in a registered table: each entry carries a name, a description,
// a typed input struct, and a handler. Registration writes the table into
// Genkit (so the model sees the schemas) and into the kit's own runner map
// (so the agent loop executes handlers directly by name). Handlers never
// return Go errors for domain failures; they return a Result the model can
// read and correct for.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
)

// Result is the uniform payload a tool feeds back to the model.
type Result map[string]any

func okResult(fields map[string]any) Result {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = "ok"
	return fields
}

func errorResult(errType, msg string) Result {
	return Result{
		"status": "error",
		"error": map[string]any{
			"error_type": errType,
			"message":    msg,
		},
	}
}

// MetricReader is the metric access the tools need.
type MetricReader interface {
	Latest(ctx context.Context, metric, geography string) (*store.DataPoint, error)
	Timeseries(ctx context.Context, metric string, limit int, geography string) ([]store.DataPoint, error)
	Range(ctx context.Context, metric, startPeriod, endPeriod string) ([]store.DataPoint, error)
	ListMetrics(ctx context.Context) ([]store.MetricInfo, error)
	Summary(ctx context.Context, names []string) ([]store.DataPoint, error)
}

// DocumentReader is the document access the tools need.
type DocumentReader interface {
	Recent(ctx context.Context, documentType string, limit int) ([]store.Document, error)
	SearchChunks(ctx context.Context, query string, limit int) ([]store.ChunkMatch, error)
}

// AdhocQuerier executes guarded read-only SQL.
type AdhocQuerier interface {
	Query(ctx context.Context, query string) (*store.QueryResult, error)
}

// Info names one registered tool.
type Info struct {
	Name        string
	Description string
}

type runner func(ctx context.Context, raw any) Result

// Config configures a Kit.
type Config struct {
	// Genkit registers tool schemas for the model. Nil skips Genkit
	// registration; handlers stay runnable, which tests rely on.
	Genkit *genkit.Genkit

	Metrics   MetricReader
	Documents DocumentReader
	Adhoc     AdhocQuerier
	Logger    log.Logger
}

func (c *Config) validate() error {
	if c.Metrics == nil {
		return fmt.Errorf("tools config: metric reader is required")
	}
	if c.Documents == nil {
		return fmt.Errorf("tools config: document reader is required")
	}
	if c.Adhoc == nil {
		return fmt.Errorf("tools config: adhoc querier is required")
	}
	return nil
}

// Kit is the housing agent's tool catalogue.
type Kit struct {
	g       *genkit.Genkit
	metrics MetricReader
	docs    DocumentReader
	adhoc   AdhocQuerier
	logger  log.Logger

	infos   []Info
	refs    []ai.ToolRef
	runners map[string]runner
}

// New builds the kit and registers the full catalogue.
func New(cfg Config) (*Kit, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	k := &Kit{
		g:       cfg.Genkit,
		metrics: cfg.Metrics,
		docs:    cfg.Documents,
		adhoc:   cfg.Adhoc,
		logger:  logger,
		runners: make(map[string]runner),
	}
	k.register()
	return k, nil
}

// Refs returns the Genkit tool references for ai.WithTools.
func (k *Kit) Refs() []ai.ToolRef {
	return k.refs
}

// Infos lists the registered tools in registration order.
func (k *Kit) Infos() []Info {
	out := make([]Info, len(k.infos))
	copy(out, k.infos)
	return out
}

// Run executes a tool by name. An unknown name yields an error Result, not a
// Go error: the model sees the failure inline and can pick another tool.
func (k *Kit) Run(ctx context.Context, name string, args any) Result {
	r, ok := k.runners[name]
	if !ok {
		k.logger.Warn("model requested unknown tool", "tool", name)
		return errorResult("UnknownTool", fmt.Sprintf("unknown tool: %s", name))
	}
	res := r(ctx, args)
	k.logger.Debug("tool executed", "tool", name, "status", res["status"])
	return res
}

// define adds one tool to the table, wiring both the Genkit registration and
// the kit's own runner.
func define[In any](k *Kit, name, description string, fn func(ctx context.Context, in In) Result) {
	k.infos = append(k.infos, Info{Name: name, Description: description})
	k.runners[name] = func(ctx context.Context, raw any) Result {
		in, err := decodeInput[In](raw)
		if err != nil {
			return errorResult("InvalidArguments", err.Error())
		}
		return fn(ctx, in)
	}
	if k.g != nil {
		tool := genkit.DefineTool(k.g, name, description,
			func(tc *ai.ToolContext, in In) (Result, error) {
				return fn(tc.Context, in), nil
			})
		k.refs = append(k.refs, tool)
	}
}

// decodeInput converts the model-provided arguments (a JSON-shaped value)
// into the tool's typed input.
func decodeInput[In any](raw any) (In, error) {
	var in In
	if raw == nil {
		return in, nil
	}
	if typed, ok := raw.(In); ok {
		return typed, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return in, fmt.Errorf("encoding tool arguments: %w", err)
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return in, fmt.Errorf("decoding tool arguments: %w", err)
	}
	return in, nil
}
