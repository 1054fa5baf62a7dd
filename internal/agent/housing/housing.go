// Package housing implements the housing-market agent: Australian dwelling
// prices, lending, affordability, and the RBA policy settings behind them.
package housing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/tools"
)

const Name = "housing"

const description = "Australian housing market: dwelling prices, average loan sizes, " +
	"building approvals, mortgage rates, affordability, and RBA board commentary on housing."

var keywords = []string{
	"housing", "house", "home", "property", "dwelling", "apartment", "unit",
	"mortgage", "loan", "rent", "rental", "affordability", "price",
	"building approval", "interest rate", "cash rate", "rba", "real estate",
	"inflation", "cpi", "unemployment",
}

const systemPrompt = `You are a housing-market analyst for Australian economic statistics.

Answer questions about dwelling prices, lending, building approvals, mortgage
rates, affordability, inflation and unemployment context, and RBA policy as it
bears on housing. Use the provided
tools to ground every figure in collected data; never invent numbers. When the
store has no data for something, say so plainly. Cite the period each figure
refers to. Keep answers concise and factual.`

// Generator runs one model call. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// Collector runs the agent's data collection. Wired from internal/collect.
type Collector interface {
	Collect(ctx context.Context) (*agent.CollectionResult, error)
}

var (
	ErrNilGenerator = errors.New("housing: generator is nil")
	ErrNilKit       = errors.New("housing: tool kit is nil")
	ErrNoCollector  = errors.New("housing: no collector configured")
)

// Config configures the housing agent.
type Config struct {
	Generator Generator
	Kit       *tools.Kit

	// Documents feeds the fresh-thread prefetch with RBA statements and
	// minutes. Optional; nil skips document prefetch.
	Documents tools.DocumentReader

	// Collector is invoked by Collect. Optional for query-only use.
	Collector Collector

	Logger log.Logger

	// ModelName is the full model reference, e.g. googleai/gemini-2.5-flash.
	ModelName string

	// MaxToolTurns bounds the tool-calling loop. Zero means the default.
	MaxToolTurns int
}

// HousingAgent answers housing questions over a bounded tool-calling loop.
type HousingAgent struct {
	gen       Generator
	kit       *tools.Kit
	docs      tools.DocumentReader
	collector Collector
	logger    log.Logger
	modelName string
	maxTurns  int
}

var _ agent.Agent = (*HousingAgent)(nil)

// New creates the housing agent.
func New(cfg Config) (*HousingAgent, error) {
	if cfg.Generator == nil {
		return nil, ErrNilGenerator
	}
	if cfg.Kit == nil {
		return nil, ErrNilKit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	maxTurns := cfg.MaxToolTurns
	if maxTurns <= 0 {
		maxTurns = config.DefaultMaxToolTurns
	}
	return &HousingAgent{
		gen:       cfg.Generator,
		kit:       cfg.Kit,
		docs:      cfg.Documents,
		collector: cfg.Collector,
		logger:    logger,
		modelName: cfg.ModelName,
		maxTurns:  maxTurns,
	}, nil
}

func (a *HousingAgent) Name() string        { return Name }
func (a *HousingAgent) Description() string { return description }

func (a *HousingAgent) Keywords() []string {
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

func (a *HousingAgent) Capabilities() agent.Capabilities {
	infos := a.kit.Infos()
	toolInfos := make([]agent.ToolInfo, 0, len(infos))
	for _, info := range infos {
		toolInfos = append(toolInfos, agent.ToolInfo{Name: info.Name, Description: info.Description})
	}
	return agent.Capabilities{
		Domains:     []string{"housing", "lending", "affordability", "monetary policy"},
		DataSources: []string{"RBA", "ABS"},
		Tools:       toolInfos,
	}
}

// Query answers a question. The model may call tools for up to maxTurns
// rounds; tool results are fed back as tool-role messages. On a fresh thread
// the agent prefetches headline metrics and recent RBA documents so the first
// answer is grounded without waiting on tool calls.
func (a *HousingAgent) Query(ctx context.Context, question string, qc agent.QueryContext) (*agent.Response, error) {
	msgs := historyMessages(qc.History)

	var prefetched bool
	if qc.ForceFetch {
		if ctxMsg := a.prefetch(ctx); ctxMsg != "" {
			msgs = append(msgs, ai.NewMessage(ai.RoleUser, nil,
				ai.NewTextPart("Current data snapshot (from the statistics store):\n"+ctxMsg)))
			prefetched = true
		}
	}
	msgs = append(msgs, ai.NewUserTextMessage(question))

	var calls []agent.ToolCall
	var content string

	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.gen.Generate(ctx,
			ai.WithModelName(a.modelName),
			ai.WithSystem(systemPrompt),
			ai.WithMessages(msgs...),
			ai.WithTools(a.kit.Refs()...),
			ai.WithReturnToolRequests(true),
		)
		if err != nil {
			return nil, fmt.Errorf("housing query: %w", err)
		}

		reqs := resp.ToolRequests()
		if len(reqs) == 0 {
			content = resp.Text()
			break
		}

		msgs = append(msgs, resp.Message)
		parts := make([]*ai.Part, 0, len(reqs))
		for _, req := range reqs {
			out := a.kit.Run(ctx, req.Name, req.Input)
			calls = append(calls, agent.ToolCall{
				Name:      req.Name,
				Arguments: argumentsMap(req.Input),
			})
			parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   req.Name,
				Ref:    req.Ref,
				Output: map[string]any(out),
			}))
		}
		msgs = append(msgs, ai.NewMessage(ai.RoleTool, nil, parts...))
	}

	// Tool budget exhausted without a final answer: one last call with the
	// tools withheld so the model must conclude from what it has.
	if content == "" {
		resp, err := a.gen.Generate(ctx,
			ai.WithModelName(a.modelName),
			ai.WithSystem(systemPrompt),
			ai.WithMessages(msgs...),
		)
		if err != nil {
			return nil, fmt.Errorf("housing query (final): %w", err)
		}
		content = resp.Text()
	}

	confidence := 0.5
	if len(calls) > 0 || prefetched {
		confidence = 0.9
	}

	a.logger.Info("housing query answered",
		"thread_id", qc.ThreadID,
		"tool_calls", len(calls),
		"prefetched", prefetched)

	return &agent.Response{
		Agent:       Name,
		Content:     content,
		Confidence:  confidence,
		SourcesUsed: sourcesFrom(calls, prefetched),
		ToolCalls:   calls,
	}, nil
}

// Collect runs the agent's collectors.
func (a *HousingAgent) Collect(ctx context.Context) (*agent.CollectionResult, error) {
	if a.collector == nil {
		return nil, ErrNoCollector
	}
	return a.collector.Collect(ctx)
}

// prefetch gathers a compact data snapshot for fresh threads: the headline
// metric summary, the latest RBA statement, and the two newest minutes.
// Failures degrade to a smaller snapshot rather than failing the query.
func (a *HousingAgent) prefetch(ctx context.Context) string {
	var b strings.Builder

	summary := a.kit.Run(ctx, "get_metrics_summary", nil)
	if summary["status"] == "ok" {
		if enc, err := json.Marshal(summary["summary"]); err == nil {
			b.WriteString("Headline metrics: ")
			b.Write(enc)
			b.WriteString("\n")
		}
	}

	if a.docs != nil {
		if stmts, err := a.docs.Recent(ctx, tools.DocTypeRBAStatement, 1); err == nil && len(stmts) > 0 {
			fmt.Fprintf(&b, "Latest RBA statement (%s): %s\n", stmts[0].Title, stmts[0].Summary)
		}
		if minutes, err := a.docs.Recent(ctx, tools.DocTypeRBAMinutes, 2); err == nil {
			for _, m := range minutes {
				fmt.Fprintf(&b, "RBA minutes (%s): %s\n", m.Title, m.Summary)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func historyMessages(history []agent.Turn) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history)+2)
	for _, turn := range history {
		switch turn.Role {
		case "assistant", "model":
			msgs = append(msgs, ai.NewModelTextMessage(turn.Content))
		default:
			msgs = append(msgs, ai.NewUserTextMessage(turn.Content))
		}
	}
	return msgs
}

func argumentsMap(input any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}
	if input == nil {
		return nil
	}
	enc, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(enc, &m); err != nil {
		return nil
	}
	return m
}

// sourcesFrom derives the distinct sources consulted for this answer.
func sourcesFrom(calls []agent.ToolCall, prefetched bool) []string {
	seen := make(map[string]bool, len(calls))
	var out []string
	if prefetched {
		seen["prefetch"] = true
		out = append(out, "prefetch")
	}
	for _, c := range calls {
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	}
	return out
}
