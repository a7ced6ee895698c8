package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/anthropic"
	"github.com/tashasho/social-media-posting-automator/internal/gemini"
	"github.com/tashasho/social-media-posting-automator/internal/groq"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/openrouter"

	"go.uber.org/zap"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderAnthropic  ProviderType = "anthropic"
)

// ProviderConfig holds configuration for a single provider instance
type ProviderConfig struct {
	Type       ProviderType  `yaml:"type"`
	APIKey     string        `yaml:"api_key"`
	ModelName  string        `yaml:"model_name"`
	BaseURL    string        `yaml:"base_url"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Rate limiting per provider
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Provider is any text generation backend
type Provider interface {
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
	Close() error
	GetModelInfo() map[string]interface{}
}

// ModelName extracts the model name a provider reports, or "unknown"
func ModelName(p Provider) string {
	if m, ok := p.GetModelInfo()["model"].(string); ok && m != "" {
		return m
	}
	return "unknown"
}

// NewProvider builds the client for one provider entry
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case ProviderGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:     cfg.APIKey,
			ModelName:  cfg.ModelName,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, logger)
	case ProviderGroq:
		return groq.NewClient(groq.Config{
			APIKey:     cfg.APIKey,
			ModelName:  cfg.ModelName,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, logger)
	case ProviderOpenRouter:
		return openrouter.NewClient(openrouter.Config{
			APIKey:     cfg.APIKey,
			ModelName:  cfg.ModelName,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, logger)
	case ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:     cfg.APIKey,
			ModelName:  cfg.ModelName,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
