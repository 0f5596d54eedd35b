// Package provider adapts hosted text-generation APIs to synthesis.Model.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

const (
	OpenAIResponsesProvider = "openai-responses"
	OpenAIChatProvider      = "openai-chat"
	GeminiProvider          = "gemini"
	// EchoProvider has no model; rephrase runs use synthesis.EchoRewriter instead.
	EchoProvider = "echo"
)

// Config selects and configures a backend.
type Config struct {
	Provider          string  `yaml:"provider" json:"provider"`
	Model             string  `yaml:"model" json:"model"`
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	APIKey            string  `yaml:"api_key" json:"-"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`

	Retry RetryPolicy `yaml:"-" json:"-"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case OpenAIResponsesProvider, OpenAIChatProvider, GeminiProvider:
	case EchoProvider:
		return nil
	default:
		return &synthesis.ConfigurationError{Field: "backend.provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &synthesis.ConfigurationError{Field: "backend.model", Reason: "must not be empty"}
	}
	if c.RequestsPerSecond < 0 {
		return &synthesis.ConfigurationError{Field: "backend.requests_per_second", Reason: "must be >= 0"}
	}
	return nil
}

// New builds the configured backend wrapped in a rate limiter.
func New(ctx context.Context, cfg Config) (synthesis.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	var (
		m   synthesis.Model
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case OpenAIResponsesProvider:
		m, err = NewOpenAIResponses(cfg.APIKey, cfg.BaseURL, cfg.Model, retry)
	case OpenAIChatProvider:
		m, err = NewOpenAIChat(cfg.APIKey, cfg.BaseURL, cfg.Model, retry)
	case GeminiProvider:
		m, err = NewGemini(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, retry)
	default:
		return nil, &synthesis.ConfigurationError{Field: "backend.provider", Reason: "echo has no text-generation model"}
	}
	if err != nil {
		return nil, err
	}
	return NewRateLimited(m, cfg.RequestsPerSecond, cfg.Burst), nil
}
