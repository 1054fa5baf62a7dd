package agent

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownAgent indicates the requested agent is not registered.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrDuplicateAgent indicates the name is already registered.
	ErrDuplicateAgent = errors.New("agent already registered")

	// ErrNilFactory indicates a nil factory was registered.
	ErrNilFactory = errors.New("nil agent factory")
)

// Factory constructs an agent. Factories are registered at wiring time and
// invoked lazily on first use, so agents with heavy dependencies cost
// nothing until needed.
type Factory func() (Agent, error)

// Registry holds registered agents. It is an explicit instance handed to the
// orchestrator, not package-level state, so tests can build isolated
// registries.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Agent
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Agent),
	}
}

// RegisterFactory registers an agent under name. The factory runs on first
// Get and its result is memoized.
func (r *Registry) RegisterFactory(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("registering agent: name is empty")
	}
	if f == nil {
		return fmt.Errorf("registering agent %q: %w", name, ErrNilFactory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("registering agent %q: %w", name, ErrDuplicateAgent)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// Register registers an already-constructed agent under its own name.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("registering agent: %w", ErrNilFactory)
	}
	return r.RegisterFactory(a.Name(), func() (Agent, error) { return a, nil })
}

// Get returns the agent registered under name, constructing it on first use.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.instances[name]; ok {
		return a, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", name, ErrUnknownAgent)
	}

	a, err := f()
	if err != nil {
		return nil, fmt.Errorf("constructing agent %q: %w", name, err)
	}
	if a == nil {
		return nil, fmt.Errorf("constructing agent %q: factory returned nil", name)
	}
	r.instances[name] = a
	return a, nil
}

// Names returns registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// All constructs and returns every registered agent in registration order.
func (r *Registry) All() ([]Agent, error) {
	names := r.Names()
	out := make([]Agent, 0, len(names))
	for _, name := range names {
		a, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
