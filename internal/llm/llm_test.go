package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

func TestNew_NilGenkit(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilGenkit) {
		t.Errorf("New(Config{}) = %v, want ErrNilGenkit", err)
	}
}

func TestNew_WiresThrottleAndDefaults(t *testing.T) {
	g := genkit.Init(context.Background())

	c, err := New(Config{
		Genkit:            g,
		RequestsPerMinute: 30,
		Temperature:       0.2,
		MaxTokens:         1024,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if c.limiter == nil {
		t.Error("requests_per_minute set but no rate limiter configured")
	}
	if c.genConfig == nil {
		t.Fatal("temperature and max tokens set but no generation config built")
	}
	if c.genConfig.MaxOutputTokens != 1024 {
		t.Errorf("max output tokens = %d, want 1024", c.genConfig.MaxOutputTokens)
	}
	if c.genConfig.Temperature == nil || *c.genConfig.Temperature != float32(0.2) {
		t.Errorf("temperature = %v, want 0.2", c.genConfig.Temperature)
	}
}

func TestNew_ZeroRateDisablesThrottle(t *testing.T) {
	g := genkit.Init(context.Background())

	c, err := New(Config{Genkit: g})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.limiter != nil {
		t.Error("limiter configured without requests_per_minute")
	}
	if c.genConfig != nil {
		t.Error("generation config built without temperature or max tokens")
	}
}
