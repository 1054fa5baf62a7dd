// Package llm wraps Genkit model calls with rate limiting, retry, and a
// circuit breaker so the orchestrator and agents share one resilient path
// to the model API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/austat/austat/internal/log"
)

// ErrNilGenkit indicates the client was constructed without a Genkit instance.
var ErrNilGenkit = errors.New("genkit instance is nil")

// Init initializes Genkit with the Google AI plugin. The API key is read
// from GEMINI_API_KEY by the plugin itself.
func Init(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("genkit initialization failed")
	}
	return g, nil
}

// Config configures a Client.
type Config struct {
	Genkit  *genkit.Genkit
	Logger  log.Logger
	Retry   RetryConfig
	Breaker CircuitBreakerConfig

	// RequestsPerMinute throttles model calls. Zero disables throttling.
	RequestsPerMinute int

	// Temperature and MaxTokens apply to every call unless the caller
	// overrides them. Zero values leave the model defaults in place.
	Temperature float64
	MaxTokens   int
}

// Client executes model calls. All calls pass the circuit breaker, then the
// rate limiter, then retry with exponential backoff.
type Client struct {
	g         *genkit.Genkit
	logger    log.Logger
	retry     RetryConfig
	breaker   *CircuitBreaker
	limiter   *rate.Limiter
	genConfig *genai.GenerateContentConfig
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, ErrNilGenkit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 && retryCfg.InitialInterval == 0 {
		retryCfg = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	var genConfig *genai.GenerateContentConfig
	if cfg.Temperature > 0 || cfg.MaxTokens > 0 {
		genConfig = &genai.GenerateContentConfig{}
		if cfg.Temperature > 0 {
			genConfig.Temperature = genai.Ptr(float32(cfg.Temperature))
		}
		if cfg.MaxTokens > 0 {
			genConfig.MaxOutputTokens = int32(cfg.MaxTokens)
		}
	}

	return &Client{
		g:         cfg.Genkit,
		logger:    logger,
		retry:     retryCfg,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		limiter:   limiter,
		genConfig: genConfig,
	}, nil
}

// Generate runs one model call with the configured resilience wrappers.
func (c *Client) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}
	if c.genConfig != nil {
		opts = append([]ai.GenerateOption{ai.WithConfig(c.genConfig)}, opts...)
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return resp, nil
}

// generateWithRetry executes the call with exponential backoff. Each attempt
// is rate limited individually so retries cannot burst past the quota.
func (c *Client) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}
