package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	// geminiBatchLimit is the most texts one EmbedContent call accepts
	geminiBatchLimit = 100
	// Issues are compared with issues, code and docs alike, so both the
	// corpus and the query side use one symmetric task type
	geminiTaskType = "SEMANTIC_SIMILARITY"
)

// GeminiProvider embeds text with the Gemini embedding models
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiProvider creates a Gemini embedder. Vectors are truncated to
// dimensions by the API and normalised locally.
func NewGeminiProvider(ctx context.Context, apiKey, model string, dimensions int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimensions == 0 {
		dimensions = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model, dimensions: dimensions}, nil
}

// Embed embeds one text
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, p, text)
}

// EmbedBatch embeds texts in request sized chunks, preserving order
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedChunks(ctx, texts, geminiBatchLimit, p.embedChunk)
}

func (p *GeminiProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	dims := int32(p.dimensions)
	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType:             geminiTaskType,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at %d", i)
		}
		vectors[i] = Normalize(emb.Values)
	}
	return vectors, nil
}

// ModelID identifies the vector space
func (p *GeminiProvider) ModelID() string {
	return modelID("gemini", p.model, p.dimensions)
}

func (p *GeminiProvider) Close() error { return nil }
