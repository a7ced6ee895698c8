package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/models"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"go.uber.org/zap"
)

// promptFunc sends one prompt and returns the first text block of the reply
type promptFunc func(userPrompt string, settings types.RequestSettings) (string, error)

// Client generates text with Claude through llmkit
type Client struct {
	apiKey     string
	modelName  string
	prompt     promptFunc
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

// Config for the Anthropic client
type Config struct {
	APIKey     string
	ModelName  string // Default: "claude-3-5-haiku-latest"
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient creates a new Anthropic client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	if cfg.ModelName == "" {
		cfg.ModelName = "claude-3-5-haiku-latest"
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		modelName:  cfg.ModelName,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	c.prompt = c.send

	logger.Info("Anthropic client initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return c, nil
}

func (c *Client) send(userPrompt string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings("", userPrompt, "", c.apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Content[0].Text, nil
}

// Close is a no-op
func (c *Client) Close() error {
	return nil
}

// Generate runs one prompt. llmkit calls are not cancellable, so the call
// runs in a goroutine and ctx only bounds how long we wait for it.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	settings := types.RequestSettings{
		Model:       c.modelName,
		MaxTokens:   req.MaxTokens,
		Temperature: float64(req.Temperature),
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying Anthropic request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.call(ctx, req.Prompt, settings)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("anthropic API error: %w", err)
			c.logger.Error("Anthropic API error", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = fmt.Errorf("empty response from anthropic")
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) call(ctx context.Context, prompt string, settings types.RequestSettings) (string, error) {
	type result struct {
		text string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		text, err := c.prompt(prompt, settings)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// GetModelInfo returns model information
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    "anthropic",
		"model":       c.modelName,
		"max_retries": c.maxRetries,
		"retry_delay": c.retryDelay.String(),
	}
}
