// Package agent defines the specialized-agent contract and the registry the
// orchestrator routes through.
//
// An agent owns one domain of Australian economic statistics: it collects
// data from its sources and answers questions using its tools. The
// orchestrator scores each registered agent's keywords against the incoming
// query and delegates to the best match.
package agent

import (
	"context"
	"strings"
	"time"
)

// Turn is one prior exchange in a conversation, passed to agents as context.
type Turn struct {
	Role    string
	Content string
}

// QueryContext carries per-query routing state into an agent.
type QueryContext struct {
	// ThreadID identifies the conversation, for logging and attribution.
	ThreadID string

	// History holds recent prior turns, oldest first.
	History []Turn

	// ForceFetch tells the agent to gather fresh context from storage
	// before answering. Set for every query on a fresh thread.
	ForceFetch bool
}

// Agent is a specialized domain agent.
type Agent interface {
	// Name is the unique registry key.
	Name() string

	// Description is shown to the model when the orchestrator answers
	// directly, so it can point users at the right agent.
	Description() string

	// Keywords drive routing: the share of keywords present in a query is
	// the agent's routing score.
	Keywords() []string

	// Capabilities describes the agent's domains, data sources, and tools.
	Capabilities() Capabilities

	// Query answers a question, possibly over several tool-calling turns.
	Query(ctx context.Context, question string, qc QueryContext) (*Response, error)

	// Collect runs the agent's data collectors.
	Collect(ctx context.Context) (*CollectionResult, error)
}

// Capabilities describes what an agent can do.
type Capabilities struct {
	Domains     []string
	DataSources []string
	Tools       []ToolInfo
}

// ToolInfo names one tool an agent exposes to the model.
type ToolInfo struct {
	Name        string
	Description string
}

// ToolCall records one tool invocation made while answering a query.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Response is an agent's answer to a query.
type Response struct {
	Agent       string
	Content     string
	Confidence  float64
	SourcesUsed []string
	ToolCalls   []ToolCall
	Metadata    map[string]any
}

// Collection statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// CollectionResult summarizes one collection run.
type CollectionResult struct {
	Status      string
	Records     int
	Errors      []string
	StartedAt   time.Time
	CompletedAt time.Time
}

// StatusFor derives the run status from per-source outcomes: failed when
// nothing succeeded, partial when some sources failed, success otherwise.
func StatusFor(succeeded, failed int) string {
	switch {
	case succeeded == 0 && failed > 0:
		return StatusFailed
	case failed > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// MatchScore scores a query against an agent's keywords: the fraction of
// keywords found in the query (case-insensitive substring), capped at 1.0.
// No keywords means no claim on any query.
func MatchScore(keywords []string, query string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	q := strings.ToLower(query)
	matched := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(q, strings.ToLower(kw)) {
			matched++
		}
	}
	score := float64(matched) / float64(len(keywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}
