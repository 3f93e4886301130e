package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/config"
)

// ErrEmptyResponse is returned when the provider produced no text
var ErrEmptyResponse = errors.New("empty completion")

// Provider defines the interface for a reasoning provider
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
	Close() error
}

// Request contains parameters for a completion request
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON object response when it supports it
	JSON bool
}

// Response is a completion plus the token usage reported by the provider
type Response struct {
	Text  string
	Model string
	// Usage is nil when the provider did not report token counts
	Usage *Usage
}

// Usage holds provider token counts
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// StatusError carries the HTTP status of a failed provider call
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewProvider creates the configured reasoning provider wrapped with retries
func NewProvider(ctx context.Context, cfg *config.LLMConfig, timeouts *config.TimeoutsConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key not configured")
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAIProvider(cfg.APIKey, cfg.Model)
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewRetryingProvider(p, RetryConfig{
		MaxRetries:     cfg.MaxRetries,
		Timeout:        timeouts.LLM,
		MaxConcurrency: cfg.MaxConcurrency,
	}), nil
}

// ExtractJSON strips markdown fences and surrounding prose from a JSON reply
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	// Some models still wrap the object in a sentence
	if !strings.HasPrefix(response, "{") {
		start := strings.Index(response, "{")
		end := strings.LastIndex(response, "}")
		if start >= 0 && end > start {
			response = response[start : end+1]
		}
	}
	return response
}
