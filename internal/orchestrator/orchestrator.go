// Package orchestrator routes conversation turns to specialized agents and
// owns thread lifecycle: persistence of every turn, topic generation, and the
// fresh-versus-established routing policy.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
)

const (
	// historyWindow is how many recent turns are replayed to the model or a
	// delegated agent on established threads.
	historyWindow = 10

	// topicInputLimit caps how much of the first message feeds topic
	// generation.
	topicInputLimit = 500

	topicTimeout = 5 * time.Second
)

var (
	ErrNilGenerator = errors.New("orchestrator: generator is nil")
	ErrNilThreads   = errors.New("orchestrator: thread store is nil")
	ErrNilRegistry  = errors.New("orchestrator: registry is nil")
	ErrEmptyMessage = errors.New("orchestrator: message is empty")
)

// Generator runs one model call. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// ThreadStore is the slice of the persistence layer the orchestrator needs.
// *store.ThreadStore satisfies it.
type ThreadStore interface {
	CreateThread(ctx context.Context) (*store.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID) (*store.Thread, error)
	UpdateTopic(ctx context.Context, id uuid.UUID, topic string) error
	MessageCount(ctx context.Context, threadID uuid.UUID) (int, error)
	AddMessage(ctx context.Context, msg *store.Message) (*store.Message, error)
	RecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]store.Message, error)
}

// Config configures an Orchestrator.
type Config struct {
	Generator Generator
	Threads   ThreadStore
	Registry  *agent.Registry
	Logger    log.Logger

	// ModelName is the full model reference for direct answers and topic
	// generation.
	ModelName string

	// FreshThreadThreshold is the turn count below which a thread is treated
	// as fresh: delegation is forced and agents prefetch context. Zero means
	// the default.
	FreshThreadThreshold int

	// MultiAgentThreshold is the routing score a second agent must strictly
	// exceed for a query to be flagged as spanning domains. Zero means the
	// default.
	MultiAgentThreshold float64

	// TopicMaxLen caps generated topics, in runes. Zero means the default.
	TopicMaxLen int
}

// Orchestrator routes chat turns.
type Orchestrator struct {
	gen            Generator
	threads        ThreadStore
	registry       *agent.Registry
	logger         log.Logger
	modelName      string
	freshThreshold int
	multiThreshold float64
	topicMaxLen    int
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, ErrNilGenerator
	}
	if cfg.Threads == nil {
		return nil, ErrNilThreads
	}
	if cfg.Registry == nil {
		return nil, ErrNilRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	fresh := cfg.FreshThreadThreshold
	if fresh <= 0 {
		fresh = config.DefaultFreshThreadThreshold
	}
	multi := cfg.MultiAgentThreshold
	if multi <= 0 {
		multi = config.DefaultMultiAgentThreshold
	}
	topicMax := cfg.TopicMaxLen
	if topicMax <= 0 {
		topicMax = config.DefaultTopicMaxLen
	}
	return &Orchestrator{
		gen:            cfg.Generator,
		threads:        cfg.Threads,
		registry:       cfg.Registry,
		logger:         logger,
		modelName:      cfg.ModelName,
		freshThreshold: fresh,
		multiThreshold: multi,
		topicMaxLen:    topicMax,
	}, nil
}

// AgentScore is one agent's routing score for a query.
type AgentScore struct {
	Name  string
	Score float64
}

// RouteDecision is the outcome of scoring a query against every agent.
type RouteDecision struct {
	// Ranked holds every registered agent, best score first. Ties keep
	// registration order.
	Ranked []AgentScore

	// Best is the top-ranked agent with a positive score, or empty when no
	// agent claims the query.
	Best string

	// RequiresMulti reports that more than one agent scored strictly above
	// the multi-agent threshold, i.e. the query spans domains.
	RequiresMulti bool
}

// Route scores the query against every registered agent's keywords.
func (o *Orchestrator) Route(query string) RouteDecision {
	names := o.registry.Names()
	ranked := make([]AgentScore, 0, len(names))
	above := 0
	for _, name := range names {
		ag, err := o.registry.Get(name)
		if err != nil {
			o.logger.Warn("skipping agent during routing", "agent", name, "error", err)
			continue
		}
		score := agent.MatchScore(ag.Keywords(), query)
		if score > o.multiThreshold {
			above++
		}
		ranked = append(ranked, AgentScore{Name: name, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ""
	if len(ranked) > 0 && ranked[0].Score > 0 {
		best = ranked[0].Name
	}
	return RouteDecision{
		Ranked:        ranked,
		Best:          best,
		RequiresMulti: above > 1,
	}
}

// Reply is one answered chat turn.
type Reply struct {
	ThreadID uuid.UUID

	// Message is the persisted assistant turn, attribution included.
	Message *store.Message

	// Routing records how the turn was dispatched.
	Routing RouteDecision

	// Direct reports the orchestrator answered itself instead of delegating.
	Direct bool
}

// Chat handles one user turn. A zero thread ID starts a new thread. The user
// message is persisted before any model work, so a failed answer never loses
// the question. Fresh threads force delegation with context prefetch;
// established threads delegate only when an agent claims the query, and
// otherwise answer directly from recent history.
func (o *Orchestrator) Chat(ctx context.Context, threadID uuid.UUID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	thread, priorTurns, err := o.resolveThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	// Loaded before the current question is persisted, so the model never
	// sees it twice: once in history and once as the live turn.
	history, err := o.recentHistory(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	if _, err := o.threads.AddMessage(ctx, &store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleUser,
		Content:  message,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	decision := o.Route(message)
	fresh := priorTurns < o.freshThreshold

	var resp *agent.Response
	direct := false
	switch {
	case fresh && o.registry.Len() > 0:
		name := decision.Best
		if name == "" {
			// No keyword hit on a fresh thread: the domain agent still
			// answers better than a bare model, so fall to the first one.
			name = o.registry.Names()[0]
		}
		resp, err = o.delegate(ctx, name, thread.ID, message, history, true)
	case decision.Best != "":
		resp, err = o.delegate(ctx, decision.Best, thread.ID, message, history, false)
	default:
		direct = true
		resp, err = o.answerDirect(ctx, message, history)
	}
	if err != nil {
		return nil, err
	}

	saved, err := o.threads.AddMessage(ctx, &store.Message{
		ThreadID:    thread.ID,
		Role:        store.RoleAssistant,
		Content:     resp.Content,
		AgentName:   resp.Agent,
		Confidence:  &resp.Confidence,
		SourcesUsed: resp.SourcesUsed,
		ToolCalls:   storeToolCalls(resp.ToolCalls),
	})
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if priorTurns == 0 && thread.Topic == "" {
		o.generateTopic(ctx, thread.ID, message)
	}

	o.logger.Info("chat turn handled",
		"thread_id", thread.ID,
		"agent", resp.Agent,
		"direct", direct,
		"fresh", fresh)

	return &Reply{
		ThreadID: thread.ID,
		Message:  saved,
		Routing:  decision,
		Direct:   direct,
	}, nil
}

func (o *Orchestrator) resolveThread(ctx context.Context, threadID uuid.UUID) (*store.Thread, int, error) {
	if threadID == uuid.Nil {
		thread, err := o.threads.CreateThread(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("create thread: %w", err)
		}
		return thread, 0, nil
	}
	thread, err := o.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}
	count, err := o.threads.MessageCount(ctx, threadID)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	return thread, count, nil
}

func (o *Orchestrator) delegate(ctx context.Context, name string, threadID uuid.UUID, message string, history []agent.Turn, forceFetch bool) (*agent.Response, error) {
	ag, err := o.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %s: %w", name, err)
	}
	resp, err := ag.Query(ctx, message, agent.QueryContext{
		ThreadID:   threadID.String(),
		History:    history,
		ForceFetch: forceFetch,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return resp, nil
}

// answerDirect handles queries no agent claims: general questions, follow-ups
// about the assistant itself. The model gets each agent's description so it
// can redirect the user to a covered domain.
func (o *Orchestrator) answerDirect(ctx context.Context, message string, history []agent.Turn) (*agent.Response, error) {
	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role == store.RoleAssistant {
			msgs = append(msgs, ai.NewModelTextMessage(turn.Content))
		} else {
			msgs = append(msgs, ai.NewUserTextMessage(turn.Content))
		}
	}
	msgs = append(msgs, ai.NewUserTextMessage(message))

	resp, err := o.gen.Generate(ctx,
		ai.WithModelName(o.modelName),
		ai.WithSystem(o.directSystemPrompt()),
		ai.WithMessages(msgs...),
	)
	if err != nil {
		return nil, fmt.Errorf("direct answer: %w", err)
	}
	return &agent.Response{
		Agent:      "orchestrator",
		Content:    resp.Text(),
		Confidence: 0.5,
	}, nil
}

func (o *Orchestrator) directSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an assistant for Australian economic statistics. ")
	b.WriteString("The question was not matched to a specialized agent; answer from general knowledge, ")
	b.WriteString("and when the question belongs to one of these domains, direct the user there:\n")
	for _, name := range o.registry.Names() {
		ag, err := o.registry.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, ag.Description())
	}
	return b.String()
}

func (o *Orchestrator) recentHistory(ctx context.Context, threadID uuid.UUID) ([]agent.Turn, error) {
	msgs, err := o.threads.RecentMessages(ctx, threadID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]agent.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, agent.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// generateTopic names the thread from its first message. Best effort: a slow
// or failed model call is logged and the thread stays untitled.
func (o *Orchestrator) generateTopic(ctx context.Context, threadID uuid.UUID, message string) {
	tctx, cancel := context.WithTimeout(ctx, topicTimeout)
	defer cancel()

	input := message
	if runes := []rune(input); len(runes) > topicInputLimit {
		input = string(runes[:topicInputLimit])
	}

	resp, err := o.gen.Generate(tctx,
		ai.WithModelName(o.modelName),
		ai.WithSystem("Produce a short topic label for a conversation, at most five words. Reply with the label only."),
		ai.WithMessages(ai.NewUserTextMessage(input)),
	)
	if err != nil {
		o.logger.Warn("topic generation failed", "thread_id", threadID, "error", err)
		return
	}

	topic := strings.TrimSpace(resp.Text())
	topic = strings.Trim(topic, `"`)
	if topic == "" {
		return
	}
	if runes := []rune(topic); len(runes) > o.topicMaxLen {
		topic = string(runes[:o.topicMaxLen]) + "..."
	}

	if err := o.threads.UpdateTopic(ctx, threadID, topic); err != nil {
		o.logger.Warn("topic update failed", "thread_id", threadID, "error", err)
	}
}

func storeToolCalls(calls []agent.ToolCall) []store.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]store.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, store.ToolCall{Name: c.Name, Arguments: c.Arguments})
	}
	return out
}
