package config

import (
	"fmt"
	"os"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration and returns the first problem found,
// wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (expected 0.0-2.0)", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: %d (expected 1-65536)", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests_per_minute %d", ErrInvalidRequestRate, c.RequestsPerMinute)
	}

	if c.FreshThreadThreshold < 0 {
		return fmt.Errorf("%w: fresh_thread_threshold %d", ErrInvalidThreshold, c.FreshThreadThreshold)
	}
	if c.MultiAgentThreshold < 0 || c.MultiAgentThreshold > 1 {
		return fmt.Errorf("%w: multi_agent_threshold %v (expected 0.0-1.0)", ErrInvalidThreshold, c.MultiAgentThreshold)
	}
	if c.MaxToolTurns <= 0 {
		return fmt.Errorf("%w: max_tool_turns %d", ErrInvalidThreshold, c.MaxToolTurns)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d with chunk_size %d", ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	// Genkit reads the key directly from the environment; only presence is
	// checked here so misconfiguration fails at startup, not mid-chat.
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}

	return nil
}
