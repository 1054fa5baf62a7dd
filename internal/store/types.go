package store

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Thread is one conversation.
type Thread struct {
	ID           uuid.UUID
	Topic        string // empty until auto-generated from the first message
	Metadata     map[string]any
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Archived reports whether the thread carries the archived metadata flag.
func (t *Thread) Archived() bool {
	v, ok := t.Metadata["archived"].(bool)
	return ok && v
}

// ToolCall records one tool invocation made while answering.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one turn in a thread. Assistant turns carry attribution:
// which agent answered, with what confidence, using which sources.
type Message struct {
	ID          uuid.UUID
	ThreadID    uuid.UUID
	Role        string
	Content     string
	AgentName   string
	Confidence  *float64
	SourcesUsed []string
	ToolCalls   []ToolCall
	SequenceNum int32
	CreatedAt   time.Time
}

// DataPoint is one observation of an economic metric.
type DataPoint struct {
	ID          uuid.UUID
	MetricName  string
	Value       float64
	Unit        string
	Period      string // "YYYY", "YYYY-MM", or "YYYY-MM-DD"
	Geography   string
	Source      string
	Metadata    map[string]any
	CollectedAt time.Time
}

// MetricInfo summarizes one metric's presence in the store.
type MetricInfo struct {
	Name         string
	LatestPeriod string
	PointCount   int64
}

// Document is one collected source document (RBA minutes, statements).
type Document struct {
	ID           uuid.UUID
	DocumentType string
	ExternalID   string
	Title        string
	URL          string
	PublishedAt  *time.Time
	Content      string
	Summary      string
	Metadata     map[string]any
	CollectedAt  time.Time
}

// ChunkMatch is one search hit inside a document chunk.
type ChunkMatch struct {
	DocumentID  uuid.UUID
	Title       string
	SectionName string
	Content     string
	PublishedAt *time.Time
}

// Collection run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// CollectionRun records one execution of an agent's collectors.
type CollectionRun struct {
	ID          uuid.UUID
	AgentName   string
	Status      string
	Records     int32
	Errors      []string
	StartedAt   time.Time
	CompletedAt *time.Time
}
