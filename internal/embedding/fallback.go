package embedding

import (
	"context"
	"fmt"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/logger"
)

// FallbackProvider wraps primary and fallback providers. Both must embed into
// the same vector space, which config validation enforces.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	log      logger.Logger
}

// NewFallbackProvider creates a provider with primary and optional fallback
func NewFallbackProvider(ctx context.Context, cfg *config.EmbeddingConfig, log logger.Logger) (*FallbackProvider, error) {
	primary, err := createProvider(ctx, &cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}

	var fallback Provider
	if cfg.Fallback.Provider != "" && cfg.Fallback.APIKey != "" {
		fallback, err = createProvider(ctx, &cfg.Fallback)
		if err != nil {
			log.Warn("embedding", "failed to create fallback provider", map[string]interface{}{"error": err.Error()})
			fallback = nil
		}
	}

	return NewFallbackFrom(primary, fallback, log), nil
}

// NewFallbackFrom builds a FallbackProvider from existing providers
func NewFallbackFrom(primary, fallback Provider, log logger.Logger) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback, log: log}
}

// createProvider creates a provider based on config
func createProvider(ctx context.Context, cfg *config.ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Embed generates an embedding with fallback on failure
func (p *FallbackProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := p.primary.Embed(ctx, text)
	if err == nil {
		return embedding, nil
	}

	if p.fallback == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("primary embedding failed (no fallback): %w", err)
	}

	p.log.Warn("embedding", "primary embedding failed, trying fallback", map[string]interface{}{"error": err.Error()})
	return p.fallback.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts with fallback
func (p *FallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := p.primary.EmbedBatch(ctx, texts)
	if err == nil {
		return embeddings, nil
	}

	if p.fallback == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("primary embedding failed (no fallback): %w", err)
	}

	p.log.Warn("embedding", "primary batch embedding failed, trying fallback", map[string]interface{}{"error": err.Error()})
	return p.fallback.EmbedBatch(ctx, texts)
}

// ModelID returns the primary model's vector space id
func (p *FallbackProvider) ModelID() string {
	return p.primary.ModelID()
}

// Close releases resources
func (p *FallbackProvider) Close() error {
	var errs []error
	if err := p.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.fallback != nil {
		if err := p.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
