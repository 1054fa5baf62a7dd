package agent

import (
	"context"
	"errors"
	"testing"
)

func TestMatchScore(t *testing.T) {
	keywords := []string{"housing", "property", "mortgage", "rent"}

	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"no match", "what is the weather today", 0},
		{"one of four", "how is the housing market", 0.25},
		{"two of four", "housing and mortgage rates", 0.5},
		{"all keywords", "housing property mortgage rent", 1.0},
		{"case insensitive", "HOUSING Prices", 0.25},
		{"keyword inside word", "rental stress", 0.25}, // "rent" matches as substring
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchScore(keywords, tt.query); got != tt.want {
				t.Errorf("MatchScore(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchScore_NoKeywords(t *testing.T) {
	if got := MatchScore(nil, "anything"); got != 0 {
		t.Errorf("MatchScore(nil keywords) = %v, want 0", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      string
	}{
		{"all succeeded", 3, 0, StatusSuccess},
		{"some failed", 2, 1, StatusPartial},
		{"all failed", 0, 2, StatusFailed},
		{"nothing ran", 0, 0, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.succeeded, tt.failed); got != tt.want {
				t.Errorf("StatusFor(%d, %d) = %q, want %q", tt.succeeded, tt.failed, got, tt.want)
			}
		})
	}
}

// stubAgent is a minimal Agent for registry tests.
type stubAgent struct {
	name string
}

func (s *stubAgent) Name() string               { return s.name }
func (s *stubAgent) Description() string        { return "stub" }
func (s *stubAgent) Keywords() []string         { return nil }
func (s *stubAgent) Capabilities() Capabilities { return Capabilities{} }
func (s *stubAgent) Query(ctx context.Context, q string, qc QueryContext) (*Response, error) {
	return &Response{Agent: s.name, Content: "ok"}, nil
}
func (s *stubAgent) Collect(ctx context.Context) (*CollectionResult, error) {
	return &CollectionResult{Status: StatusSuccess}, nil
}

func TestRegistry_LazyConstruction(t *testing.T) {
	r := NewRegistry()
	calls := 0

	err := r.RegisterFactory("housing", func() (Agent, error) {
		calls++
		return &stubAgent{name: "housing"}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	if calls != 0 {
		t.Fatalf("factory ran at registration time")
	}

	a1, err := r.Get("housing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a2, err := r.Get("housing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if calls != 1 {
		t.Errorf("factory ran %d times, want 1 (memoized)", calls)
	}
	if a1 != a2 {
		t.Error("Get returned different instances")
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	f := func() (Agent, error) { return &stubAgent{name: "housing"}, nil }

	if err := r.RegisterFactory("housing", f); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := r.RegisterFactory("housing", f); !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("second registration = %v, want ErrDuplicateAgent", err)
	}
}

func TestRegistry_UnknownAgent(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("labour"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("Get(unknown) = %v, want ErrUnknownAgent", err)
	}
}

func TestRegistry_NilFactory(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterFactory("housing", nil); !errors.Is(err, ErrNilFactory) {
		t.Errorf("RegisterFactory(nil) = %v, want ErrNilFactory", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("no database")
	_ = r.RegisterFactory("housing", func() (Agent, error) { return nil, boom })

	if _, err := r.Get("housing"); !errors.Is(err, boom) {
		t.Errorf("Get = %v, want wrapped factory error", err)
	}

	// A failed construction is not memoized; the factory may succeed later.
	if _, err := r.Get("housing"); !errors.Is(err, boom) {
		t.Errorf("second Get = %v, want factory retried", err)
	}
}

func TestRegistry_NamesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"housing", "labour", "trade"} {
		n := name
		_ = r.RegisterFactory(n, func() (Agent, error) { return &stubAgent{name: n}, nil })
	}

	names := r.Names()
	want := []string{"housing", "labour", "trade"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubAgent{name: "housing"})
	_ = r.Register(&stubAgent{name: "labour"})

	agents, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(agents) != 2 || agents[0].Name() != "housing" || agents[1].Name() != "labour" {
		t.Errorf("All() order wrong: %v", agents)
	}
}
