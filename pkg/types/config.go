package types

import (
	"fmt"
	"time"
)

// LLMProvider selects the text-generation backend.
type LLMProvider string

const (
	ProviderClaude LLMProvider = "claude"
	ProviderOpenAI LLMProvider = "openai"
)

// SearchProvider selects the bibliographic search backend.
type SearchProvider string

const (
	SearchOpenAlex        SearchProvider = "openalex"
	SearchSemanticScholar SearchProvider = "semantic_scholar"
)

// LLMConfig holds settings for the text-generation collaborator shared by
// every stage that calls it.
type LLMConfig struct {
	// Provider selects the backend: claude or openai.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929", "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the provider. Usually loaded from .secrets/.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the endpoint for OpenAI-compatible providers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens caps the length of each response.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout bounds a single generation call. A call that exceeds it fails
	// the invoking stage.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	// Provider selects the backend: openalex or semantic_scholar.
	Provider SearchProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// PerTopic is the maximum number of sources requested per topic.
	PerTopic int `json:"per_topic" yaml:"per_topic" mapstructure:"per_topic"`

	// Workers bounds the number of concurrent topic lookups.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Timeout bounds a single topic lookup.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// RequestsPerSecond caps the request rate against the provider.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// UserAgent is sent with every HTTP request (e.g. "cite-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Email is sent to OpenAlex as mailto for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// APIKey is an optional Semantic Scholar key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// RetryConfig controls the resilient wrapper around the search stage.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BaseDelay is the first backoff delay; each later delay doubles.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// ArchiveConfig holds settings for the run archive.
type ArchiveConfig struct {
	// Path is the SQLite database file. Empty disables archiving.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Format is console or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Level is debug, info, warn, or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// Config groups all settings for a pipeline run.
type Config struct {
	LLM     LLMConfig     `json:"llm" yaml:"llm" mapstructure:"llm"`
	Search  SearchConfig  `json:"search" yaml:"search" mapstructure:"search"`
	Retry   RetryConfig   `json:"retry" yaml:"retry" mapstructure:"retry"`
	Archive ArchiveConfig `json:"archive" yaml:"archive" mapstructure:"archive"`
	Log     LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the settings used when neither a config file nor the
// environment overrides them.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:  ProviderClaude,
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Search: SearchConfig{
			Provider:          SearchOpenAlex,
			PerTopic:          3,
			Workers:           4,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			UserAgent:         "cite-engine/0.1",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: "runs.db",
		},
		Log: LogConfig{
			Format: "console",
			Level:  "info",
		},
	}
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderClaude, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider %q: use claude or openai", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %v", c.LLM.Timeout)
	}
	switch c.Search.Provider {
	case SearchOpenAlex, SearchSemanticScholar:
	default:
		return fmt.Errorf("search.provider %q: use openalex or semantic_scholar", c.Search.Provider)
	}
	if c.Search.PerTopic <= 0 {
		return fmt.Errorf("search.per_topic must be positive, got %d", c.Search.PerTopic)
	}
	if c.Search.Workers <= 0 {
		return fmt.Errorf("search.workers must be positive, got %d", c.Search.Workers)
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be positive, got %v", c.Search.Timeout)
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be a positive integer, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative, got %v", c.Retry.BaseDelay)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q: use console or json", c.Log.Format)
	}
	return nil
}
