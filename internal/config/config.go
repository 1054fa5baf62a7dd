// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.austat/config.yaml)
//  3. Default values
//
// Security: sensitive fields (passwords, API keys) are masked in MarshalJSON
// and String; the config directory uses 0750 permissions.
//
// Error handling uses sentinel errors so callers can check with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidRequestRate indicates the model request rate is negative.
	ErrInvalidRequestRate = errors.New("invalid request rate")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidThreshold indicates a routing threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid routing threshold")
)

const (
	// DefaultModelName is the model used for both routing responses and
	// agent tool loops.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultFreshThreadThreshold is the number of prior turns below which a
	// thread is treated as fresh and always delegated with a forced fetch.
	DefaultFreshThreadThreshold = 6

	// DefaultMultiAgentThreshold is the routing score above which an agent
	// counts toward the multi-agent flag.
	DefaultMultiAgentThreshold = 0.3

	// DefaultMaxToolTurns caps tool-calling iterations per agent query.
	DefaultMaxToolTurns = 5

	// DefaultTopicMaxLen caps auto-generated thread topics, in runes.
	DefaultTopicMaxLen = 50
)

// Provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// CollectConfig holds collector settings.
type CollectConfig struct {
	// RBABaseURL is the Reserve Bank site root scraped for minutes and rates.
	RBABaseURL string `mapstructure:"rba_base_url" json:"rba_base_url"`
	// ABSBaseURL is the Bureau of Statistics data API root.
	ABSBaseURL string `mapstructure:"abs_base_url" json:"abs_base_url"`
	// UserAgent identifies the collector to the source sites.
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`
	// DelayMS is the per-request politeness delay for scrapers.
	DelayMS int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMS bounds a single source fetch.
	TimeoutMS int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// TracingConfig holds the optional OTLP trace export settings. Tracing is
// disabled when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	// RequestsPerMinute throttles model calls. Zero disables throttling.
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`

	// Orchestration
	FreshThreadThreshold int     `mapstructure:"fresh_thread_threshold" json:"fresh_thread_threshold"`
	MultiAgentThreshold  float64 `mapstructure:"multi_agent_threshold" json:"multi_agent_threshold"`
	MaxToolTurns         int     `mapstructure:"max_tool_turns" json:"max_tool_turns"`
	TopicMaxLen          int     `mapstructure:"topic_max_len" json:"topic_max_len"`

	// Document chunking
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Collectors
	Collect CollectConfig `mapstructure:"collect" json:"collect"`

	// Tracing
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".austat")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("requests_per_minute", 30)

	viper.SetDefault("fresh_thread_threshold", DefaultFreshThreadThreshold)
	viper.SetDefault("multi_agent_threshold", DefaultMultiAgentThreshold)
	viper.SetDefault("max_tool_turns", DefaultMaxToolTurns)
	viper.SetDefault("topic_max_len", DefaultTopicMaxLen)

	viper.SetDefault("chunk_size", 1500)
	viper.SetDefault("chunk_overlap", 200)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "austat")
	viper.SetDefault("postgres_password", "austat_dev_password")
	viper.SetDefault("postgres_db_name", "austat")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("collect.rba_base_url", "https://www.rba.gov.au")
	viper.SetDefault("collect.abs_base_url", "https://api.data.abs.gov.au")
	viper.SetDefault("collect.user_agent", "austat-collector/1.0")
	viper.SetDefault("collect.delay_ms", 1000)
	viper.SetDefault("collect.timeout_ms", 30000)

	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "austat")
}

// bindEnvVariables binds explicit environment overrides. GEMINI_API_KEY is
// read directly by Genkit, not through viper; Validate only checks presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "AUSTAT_PROVIDER")
	mustBind("model_name", "AUSTAT_MODEL_NAME")
	mustBind("tracing.endpoint", "AUSTAT_OTLP_ENDPOINT")
	mustBind("collect.rba_base_url", "AUSTAT_RBA_BASE_URL")
	mustBind("collect.abs_base_url", "AUSTAT_ABS_BASE_URL")
}

// maskedValue uses full-width blocks so masked output can never be a
// substring of the original secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 chars or fewer
// are fully masked; longer ones keep the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of sensitive
// fields. When adding a new secret field, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}
