package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/austat/austat/internal/agent"
	"github.com/austat/austat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedGen struct {
	responses []*ai.ModelResponse
	err       error
	calls     int
}

func (g *scriptedGen) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	i := g.calls
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if i >= len(g.responses) {
		return nil, fmt.Errorf("unexpected model call %d", i)
	}
	return g.responses[i], nil
}

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{
		Message: &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart(text)}},
	}
}

// fakeThreads is an in-memory ThreadStore.
type fakeThreads struct {
	threads map[uuid.UUID]*store.Thread
	counts  map[uuid.UUID]int
	msgs    []store.Message
	topics  map[uuid.UUID]string
	addErr  error
	seq     int32
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		threads: map[uuid.UUID]*store.Thread{},
		counts:  map[uuid.UUID]int{},
		topics:  map[uuid.UUID]string{},
	}
}

func (f *fakeThreads) CreateThread(ctx context.Context) (*store.Thread, error) {
	t := &store.Thread{ID: uuid.New()}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeThreads) GetThread(ctx context.Context, id uuid.UUID) (*store.Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return nil, store.ErrThreadNotFound
	}
	return t, nil
}

func (f *fakeThreads) UpdateTopic(ctx context.Context, id uuid.UUID, topic string) error {
	f.topics[id] = topic
	return nil
}

func (f *fakeThreads) MessageCount(ctx context.Context, threadID uuid.UUID) (int, error) {
	return f.counts[threadID], nil
}

func (f *fakeThreads) AddMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.seq++
	saved := *msg
	saved.SequenceNum = f.seq
	f.msgs = append(f.msgs, saved)
	return &saved, nil
}

func (f *fakeThreads) RecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]store.Message, error) {
	var out []store.Message
	for _, m := range f.msgs {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// stubAgent records how it was queried.
type stubAgent struct {
	name     string
	kws      []string
	resp     *agent.Response
	err      error
	gotQC    agent.QueryContext
	gotQuery string
	queries  int
}

func (s *stubAgent) Name() string                     { return s.name }
func (s *stubAgent) Description() string              { return s.name + " domain" }
func (s *stubAgent) Keywords() []string               { return s.kws }
func (s *stubAgent) Capabilities() agent.Capabilities { return agent.Capabilities{} }

func (s *stubAgent) Query(ctx context.Context, question string, qc agent.QueryContext) (*agent.Response, error) {
	s.queries++
	s.gotQuery = question
	s.gotQC = qc
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubAgent) Collect(ctx context.Context) (*agent.CollectionResult, error) {
	return &agent.CollectionResult{Status: agent.StatusSuccess}, nil
}

func registryWith(t *testing.T, agents ...agent.Agent) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry()
	for _, ag := range agents {
		if err := r.Register(ag); err != nil {
			t.Fatalf("register %s: %v", ag.Name(), err)
		}
	}
	return r
}

func newOrchestrator(t *testing.T, gen Generator, threads ThreadStore, reg *agent.Registry) *Orchestrator {
	t.Helper()
	o, err := New(Config{Generator: gen, Threads: threads, Registry: reg, ModelName: "googleai/test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNew_Validation(t *testing.T) {
	gen := &scriptedGen{}
	threads := newFakeThreads()
	reg := agent.NewRegistry()

	if _, err := New(Config{Threads: threads, Registry: reg}); !errors.Is(err, ErrNilGenerator) {
		t.Errorf("missing generator: got %v", err)
	}
	if _, err := New(Config{Generator: gen, Registry: reg}); !errors.Is(err, ErrNilThreads) {
		t.Errorf("missing threads: got %v", err)
	}
	if _, err := New(Config{Generator: gen, Threads: threads}); !errors.Is(err, ErrNilRegistry) {
		t.Errorf("missing registry: got %v", err)
	}
}

func TestRoute_RankedAndMulti(t *testing.T) {
	housing := &stubAgent{name: "housing", kws: []string{"housing", "mortgage"}}
	labour := &stubAgent{name: "labour", kws: []string{"employment", "wages", "jobs", "unemployment"}}
	o := newOrchestrator(t, &scriptedGen{}, newFakeThreads(), registryWith(t, housing, labour))

	d := o.Route("how do mortgage and housing costs affect wages and employment?")
	if d.Best != "housing" {
		t.Errorf("best = %q, want housing", d.Best)
	}
	// housing scores 1.0, labour 0.5: both strictly above 0.3.
	if !d.RequiresMulti {
		t.Error("expected RequiresMulti for a query spanning both domains")
	}
	if len(d.Ranked) != 2 || d.Ranked[0].Name != "housing" || d.Ranked[1].Name != "labour" {
		t.Errorf("ranked = %+v", d.Ranked)
	}
}

func TestRoute_SingleDomainNotMulti(t *testing.T) {
	housing := &stubAgent{name: "housing", kws: []string{"housing", "mortgage"}}
	labour := &stubAgent{name: "labour", kws: []string{"employment", "wages"}}
	o := newOrchestrator(t, &scriptedGen{}, newFakeThreads(), registryWith(t, housing, labour))

	d := o.Route("what is the average mortgage size?")
	if d.Best != "housing" || d.RequiresMulti {
		t.Errorf("decision = %+v", d)
	}
}

func TestRoute_NoClaim(t *testing.T) {
	housing := &stubAgent{name: "housing", kws: []string{"housing"}}
	o := newOrchestrator(t, &scriptedGen{}, newFakeThreads(), registryWith(t, housing))

	if d := o.Route("tell me a joke"); d.Best != "" {
		t.Errorf("best = %q, want none", d.Best)
	}
}

func TestChat_FreshThreadDelegatesWithPrefetch(t *testing.T) {
	housing := &stubAgent{
		name: "housing",
		kws:  []string{"mortgage"},
		resp: &agent.Response{
			Agent: "housing", Content: "Average new mortgage: $620k.",
			Confidence: 0.9, SourcesUsed: []string{"get_latest_metric"},
			ToolCalls: []agent.ToolCall{{Name: "get_latest_metric"}},
		},
	}
	threads := newFakeThreads()
	gen := &scriptedGen{responses: []*ai.ModelResponse{textResponse("Mortgage sizes")}}
	o := newOrchestrator(t, gen, threads, registryWith(t, housing))

	reply, err := o.Chat(context.Background(), uuid.Nil, "how big is the average mortgage?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.ThreadID == uuid.Nil {
		t.Fatal("expected a thread to be created")
	}
	if !housing.gotQC.ForceFetch {
		t.Error("fresh thread should force prefetch")
	}
	if reply.Direct {
		t.Error("fresh thread should delegate, not answer directly")
	}

	// Both turns persisted, user first, assistant with attribution.
	if len(threads.msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(threads.msgs))
	}
	if threads.msgs[0].Role != store.RoleUser {
		t.Errorf("first persisted role = %q", threads.msgs[0].Role)
	}
	asst := threads.msgs[1]
	if asst.AgentName != "housing" || asst.Confidence == nil || *asst.Confidence != 0.9 {
		t.Errorf("assistant attribution = %+v", asst)
	}
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Name != "get_latest_metric" {
		t.Errorf("tool calls = %+v", asst.ToolCalls)
	}

	// Topic generated from the first message.
	if threads.topics[reply.ThreadID] != "Mortgage sizes" {
		t.Errorf("topic = %q", threads.topics[reply.ThreadID])
	}
}

func TestChat_FreshThreadUnmatchedStillDelegates(t *testing.T) {
	housing := &stubAgent{
		name: "housing", kws: []string{"mortgage"},
		resp: &agent.Response{Agent: "housing", Content: "Here's the housing picture.", Confidence: 0.9},
	}
	gen := &scriptedGen{responses: []*ai.ModelResponse{textResponse("General question")}}
	o := newOrchestrator(t, gen, newFakeThreads(), registryWith(t, housing))

	reply, err := o.Chat(context.Background(), uuid.Nil, "what data do you have?")
	if err != nil {
		t.Fatal(err)
	}
	if housing.queries != 1 || !housing.gotQC.ForceFetch {
		t.Errorf("queries=%d force=%v; fresh unmatched turns go to the first agent", housing.queries, housing.gotQC.ForceFetch)
	}
	if reply.Direct {
		t.Error("should not be a direct answer")
	}
}

func TestChat_EstablishedDelegatesOnClaim(t *testing.T) {
	housing := &stubAgent{
		name: "housing", kws: []string{"mortgage"},
		resp: &agent.Response{Agent: "housing", Content: "Still $620k.", Confidence: 0.9},
	}
	threads := newFakeThreads()
	existing, _ := threads.CreateThread(context.Background())
	threads.counts[existing.ID] = 8
	gen := &scriptedGen{}
	o := newOrchestrator(t, gen, threads, registryWith(t, housing))

	reply, err := o.Chat(context.Background(), existing.ID, "and the mortgage now?")
	if err != nil {
		t.Fatal(err)
	}
	if housing.gotQC.ForceFetch {
		t.Error("established thread should not force prefetch")
	}
	if gen.calls != 0 {
		t.Errorf("model called %d times; established delegation needs none", gen.calls)
	}
	if _, ok := threads.topics[existing.ID]; ok {
		t.Error("topic must only be generated on the first turn")
	}
	if reply.Direct {
		t.Error("claimed query should delegate")
	}
}

func TestChat_HistoryExcludesCurrentQuestion(t *testing.T) {
	housing := &stubAgent{
		name: "housing", kws: []string{"mortgage"},
		resp: &agent.Response{Agent: "housing", Content: "Up 3 per cent.", Confidence: 0.9},
	}
	threads := newFakeThreads()
	existing, _ := threads.CreateThread(context.Background())
	threads.msgs = append(threads.msgs,
		store.Message{ThreadID: existing.ID, Role: store.RoleUser, Content: "how big is the average mortgage?"},
		store.Message{ThreadID: existing.ID, Role: store.RoleAssistant, Content: "$620k."},
	)
	threads.counts[existing.ID] = 8
	o := newOrchestrator(t, &scriptedGen{}, threads, registryWith(t, housing))

	question := "has the average mortgage grown since?"
	if _, err := o.Chat(context.Background(), existing.ID, question); err != nil {
		t.Fatal(err)
	}

	if len(housing.gotQC.History) != 2 {
		t.Fatalf("history length = %d, want the 2 prior turns", len(housing.gotQC.History))
	}
	// The live question reaches the agent once, as the question argument;
	// the history must stop before it.
	for _, turn := range housing.gotQC.History {
		if turn.Content == question {
			t.Error("current question appears in history as well as the live turn")
		}
	}
}

func TestChat_EstablishedUnmatchedAnswersDirect(t *testing.T) {
	housing := &stubAgent{name: "housing", kws: []string{"mortgage"}}
	threads := newFakeThreads()
	existing, _ := threads.CreateThread(context.Background())
	threads.counts[existing.ID] = 8
	gen := &scriptedGen{responses: []*ai.ModelResponse{textResponse("I track housing statistics; ask the housing agent.")}}
	o := newOrchestrator(t, gen, threads, registryWith(t, housing))

	reply, err := o.Chat(context.Background(), existing.ID, "thanks, that's all")
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Direct {
		t.Error("unclaimed query on an established thread should be answered directly")
	}
	if housing.queries != 0 {
		t.Errorf("agent queried %d times, want 0", housing.queries)
	}
	if reply.Message.AgentName != "orchestrator" {
		t.Errorf("attribution = %q", reply.Message.AgentName)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	o := newOrchestrator(t, &scriptedGen{}, newFakeThreads(), agent.NewRegistry())

	if _, err := o.Chat(context.Background(), uuid.Nil, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("got %v, want ErrEmptyMessage", err)
	}
}

func TestChat_UnknownThread(t *testing.T) {
	o := newOrchestrator(t, &scriptedGen{}, newFakeThreads(), agent.NewRegistry())

	if _, err := o.Chat(context.Background(), uuid.New(), "hello"); !errors.Is(err, store.ErrThreadNotFound) {
		t.Errorf("got %v, want ErrThreadNotFound", err)
	}
}

func TestChat_UserMessageSurvivesAgentFailure(t *testing.T) {
	housing := &stubAgent{name: "housing", kws: []string{"mortgage"}, err: errors.New("model down")}
	threads := newFakeThreads()
	o := newOrchestrator(t, &scriptedGen{}, threads, registryWith(t, housing))

	_, err := o.Chat(context.Background(), uuid.Nil, "mortgage size?")
	if err == nil {
		t.Fatal("expected agent failure to propagate")
	}
	if len(threads.msgs) != 1 || threads.msgs[0].Role != store.RoleUser {
		t.Errorf("persisted = %+v; the question must be saved before the answer is attempted", threads.msgs)
	}
}

func TestChat_TopicTruncated(t *testing.T) {
	housing := &stubAgent{
		name: "housing", kws: []string{"mortgage"},
		resp: &agent.Response{Agent: "housing", Content: "ok", Confidence: 0.9},
	}
	long := strings.Repeat("housing affordability ", 5) // 110 runes
	gen := &scriptedGen{responses: []*ai.ModelResponse{textResponse(long)}}
	threads := newFakeThreads()
	o := newOrchestrator(t, gen, threads, registryWith(t, housing))

	reply, err := o.Chat(context.Background(), uuid.Nil, "mortgage?")
	if err != nil {
		t.Fatal(err)
	}
	topic := threads.topics[reply.ThreadID]
	if !strings.HasSuffix(topic, "...") {
		t.Errorf("long topic should be truncated with ellipsis, got %q", topic)
	}
	if got := len([]rune(topic)); got != 53 {
		t.Errorf("topic length = %d runes, want 50 plus ellipsis", got)
	}
}

func TestChat_TopicFailureIsNonFatal(t *testing.T) {
	housing := &stubAgent{
		name: "housing", kws: []string{"mortgage"},
		resp: &agent.Response{Agent: "housing", Content: "ok", Confidence: 0.9},
	}
	gen := &scriptedGen{err: errors.New("model down")}
	threads := newFakeThreads()
	o := newOrchestrator(t, gen, threads, registryWith(t, housing))

	reply, err := o.Chat(context.Background(), uuid.Nil, "mortgage?")
	if err != nil {
		t.Fatalf("topic failure must not fail the turn: %v", err)
	}
	if topic := threads.topics[reply.ThreadID]; topic != "" {
		t.Errorf("topic = %q, want none", topic)
	}
}
