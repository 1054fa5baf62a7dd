package llm

import (
	"strings"
	"time"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether an error is worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Rate limits
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}
	// Transient server errors
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}
	// Network errors
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
