package llm

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("Allow() before threshold = %v", err)
		}
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v, want probe allowed", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}

	// Two probe successes close the circuit.
	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_ReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Millisecond})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() = %v", err)
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Errorf("state = %s, want open after probe failure", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed (failures interleaved with successes)", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"server error", errors.New("503 Service Unavailable"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"bad request", errors.New("400 invalid argument"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
