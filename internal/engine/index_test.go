package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kavirubc/gh-triage/internal/evidence"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/testutil"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

type fakeCorpus struct {
	issues []*models.Issue
	prs    []*models.PullRequest
	opts   []github.ListOptions
}

func (f *fakeCorpus) ListIssues(ctx context.Context, project string, opts github.ListOptions) ([]*models.Issue, int, error) {
	f.opts = append(f.opts, opts)
	start := (opts.Page - 1) * opts.PerPage
	if start >= len(f.issues) {
		return nil, 0, nil
	}
	end := start + opts.PerPage
	if end > len(f.issues) {
		end = len(f.issues)
	}
	page := f.issues[start:end]
	return page, len(page), nil
}

func (f *fakeCorpus) ListPullRequests(ctx context.Context, project, state string, max int) ([]*models.PullRequest, error) {
	return f.prs, nil
}

func TestCorpusIndexer_IndexProject(t *testing.T) {
	now := time.Now()
	corpus := &fakeCorpus{
		issues: []*models.Issue{
			{Org: "acme", Repo: "widgets", Number: 1, Title: "First", State: "open"},
			{Org: "acme", Repo: "widgets", Number: 2, Title: "Second", State: "closed"},
		},
		prs: []*models.PullRequest{
			{Org: "acme", Repo: "widgets", Number: 3, Title: "Fix it", State: "merged", UpdatedAt: now},
			{Org: "acme", Repo: "widgets", Number: 4, Title: "Old", State: "closed", UpdatedAt: now.Add(-30 * 24 * time.Hour)},
		},
	}
	store := testutil.NewStore()
	writer := evidence.NewIndexer(&testutil.Embedder{}, store, 10, false, nil)

	stats, err := NewCorpusIndexer(corpus, writer, store, 3, false, nil).
		IndexProject(context.Background(), project, IndexOptions{PullRequests: true, Since: "7d"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalIssues)
	assert.Equal(t, 1, stats.TotalPRs)
	assert.Equal(t, 3, stats.Indexed)
	assert.Len(t, store.Upserted, 3)

	require.Len(t, corpus.opts, 1)
	assert.False(t, corpus.opts[0].Since.IsZero())
}

func TestCorpusIndexer_InvalidSince(t *testing.T) {
	idx := NewCorpusIndexer(&fakeCorpus{}, evidence.NewIndexer(&testutil.Embedder{}, testutil.NewStore(), 10, false, nil), nil, 3, false, nil)
	_, err := idx.IndexProject(context.Background(), project, IndexOptions{Since: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"24h", now.Add(-24 * time.Hour), false},
		{"90m", now.Add(-90 * time.Minute), false},
		{"7d", now.Add(-7 * 24 * time.Hour), false},
		{"xd", time.Time{}, true},
		{"soon", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSince(tt.in, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSince(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
