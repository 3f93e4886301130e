package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// maxIssueTextLen keeps issue text within roughly 1500 tokens
const maxIssueTextLen = 6000

// ErrNoInput is returned when there is nothing to embed
var ErrNoInput = errors.New("no text to embed")

// Provider defines the interface for embedding generation
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// ModelID identifies the vector space ("provider/model@dims")
	ModelID() string
	Close() error
}

// PrepareIssueText combines title and body for embedding. The indexer and the
// evidence gatherer both go through here so query and corpus vectors match.
func PrepareIssueText(title, body string) string {
	text := fmt.Sprintf("Title: %s\n\nBody: %s", strings.TrimSpace(title), CleanText(body))
	return TruncateText(text, maxIssueTextLen)
}

// TruncateText truncates text to maxLen bytes without splitting a rune
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// CleanText removes excessive whitespace from text
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// Normalize scales a vector to unit length so cosine and inner product agree
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / magnitude)
	}
	return out
}

func modelID(provider, model string, dims int) string {
	return fmt.Sprintf("%s/%s@%d", provider, model, dims)
}

// embedOne embeds a single text through the batch path
func embedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedChunks calls fn on consecutive slices of at most size texts and
// concatenates the results in input order
func embedChunks(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrNoInput
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}
