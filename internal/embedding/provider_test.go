package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	id    string
	vec   []float32
	err   error
	calls int
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubProvider) ModelID() string { return s.id }
func (s *stubProvider) Close() error    { return nil }

func TestPrepareIssueText(t *testing.T) {
	text := PrepareIssueText("  Crash on start ", "line one\n\n\n  line two  ")
	assert.Equal(t, "Title: Crash on start\n\nBody: line one\nline two", text)

	long := PrepareIssueText("t", strings.Repeat("é", 5000))
	assert.LessOrEqual(t, len(long), maxIssueTextLen+3)
	assert.True(t, utf8.ValidString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdef", 3, "abc..."},
		{"rune boundary", "aé", 2, "a..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateText(tt.text, tt.maxLen); got != tt.want {
				t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestFallbackProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("primary succeeds", func(t *testing.T) {
		primary := &stubProvider{id: "p", vec: []float32{1}}
		fallback := &stubProvider{id: "p", vec: []float32{2}}
		fp := NewFallbackFrom(primary, fallback, logger.NewNop())

		v, err := fp.Embed(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, v)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("falls back on error", func(t *testing.T) {
		primary := &stubProvider{id: "p", err: errors.New("quota")}
		fallback := &stubProvider{id: "p", vec: []float32{2}}
		fp := NewFallbackFrom(primary, fallback, logger.NewNop())

		v, err := fp.EmbedBatch(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, v, 2)
		assert.Equal(t, "p", fp.ModelID())
	})

	t.Run("no fallback", func(t *testing.T) {
		primary := &stubProvider{id: "p", err: errors.New("down")}
		fp := NewFallbackFrom(primary, nil, logger.NewNop())

		_, err := fp.Embed(ctx, "x")
		assert.Error(t, err)
	})
}

func TestEmbedChunks(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	var sizes []int
	fn := func(ctx context.Context, chunk []string) ([][]float32, error) {
		sizes = append(sizes, len(chunk))
		out := make([][]float32, len(chunk))
		for i, s := range chunk {
			out[i] = []float32{float32(s[0])}
		}
		return out, nil
	}

	vectors, err := embedChunks(context.Background(), texts, 2, fn)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	require.Len(t, vectors, 5)
	for i, s := range texts {
		assert.Equal(t, float32(s[0]), vectors[i][0])
	}

	_, err = embedChunks(context.Background(), nil, 2, fn)
	assert.ErrorIs(t, err, ErrNoInput)

	boom := errors.New("boom")
	_, err = embedChunks(context.Background(), texts, 2, func(ctx context.Context, chunk []string) ([][]float32, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
