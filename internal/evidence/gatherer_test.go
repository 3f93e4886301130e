package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/testutil"
	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const project = "acme/widgets"

func issueRecord(number int, title, state string) models.EmbeddingRecord {
	return models.EmbeddingRecord{
		SourceID:    models.IssueSourceID(project, number),
		SourceKind:  models.SourceIssue,
		ProjectID:   project,
		TitleOrPath: title,
		Number:      number,
		State:       state,
	}
}

func newIssue(number int) *models.Issue {
	return &models.Issue{Org: "acme", Repo: "widgets", Number: number, Title: "Crash on save", Body: "stack trace"}
}

func TestGather(t *testing.T) {
	store := testutil.NewStore()
	store.Add(issueRecord(42, "Crash on save", "open"), 0.99) // self
	store.Add(issueRecord(10, "Crash when saving", "closed"), 0.91)
	store.Add(issueRecord(11, "Save is slow", "open"), 0.40)
	store.Add(issueRecord(12, "Unrelated", "open"), 0.05)
	store.Add(models.EmbeddingRecord{SourceID: "doc1", SourceKind: models.SourceDocChunk, ProjectID: project, TitleOrPath: "docs/saving.md", Line: 12}, 0.82)
	store.Add(models.EmbeddingRecord{SourceID: "other", SourceKind: models.SourceDocChunk, ProjectID: "acme/other", TitleOrPath: "README.md"}, 0.99)

	g := NewGatherer(&testutil.Embedder{}, store, Options{K: 2}, logger.NewNop())
	bundle := g.Gather(context.Background(), newIssue(42), 0)

	require.False(t, bundle.Degraded)
	require.Len(t, bundle.SimilarIssues, 2)
	assert.Equal(t, 10, bundle.SimilarIssues[0].Number, "self is excluded")
	assert.Equal(t, 11, bundle.SimilarIssues[1].Number)
	assert.InDelta(t, 0.91, bundle.SimilarIssues[0].Similarity, 1e-9)

	require.Len(t, bundle.SimilarDocs, 1, "other projects are filtered out")
	assert.Equal(t, "docs/saving.md", bundle.SimilarDocs[0].TitleOrPath)
	assert.Empty(t, bundle.SimilarCode)
	assert.Empty(t, bundle.SimilarPRs)

	top, ok := bundle.TopIssue()
	require.True(t, ok)
	assert.True(t, top.IsClosed())

	// Every pool was queried within the project
	assert.Len(t, store.Queries, len(models.SourceKinds))
	for _, q := range store.Queries {
		assert.Equal(t, project, q.ProjectID)
	}
}

func TestGather_NoThreshold(t *testing.T) {
	store := testutil.NewStore()
	store.Add(issueRecord(3, "barely related", "open"), 0.01)

	g := NewGatherer(&testutil.Embedder{}, store, Options{K: 5}, nil)
	bundle := g.Gather(context.Background(), newIssue(1), 5)
	require.Len(t, bundle.SimilarIssues, 1)
}

func TestGather_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		embedder *testutil.Embedder
		store    *testutil.Store
	}{
		{
			name:     "store unreachable",
			embedder: &testutil.Embedder{},
			store:    &testutil.Store{Err: testutil.ErrUnavailable},
		},
		{
			name:     "embedding fails",
			embedder: &testutil.Embedder{Err: errors.New("quota exceeded")},
			store:    testutil.NewStore(),
		},
		{
			name:     "query timeout",
			embedder: &testutil.Embedder{},
			store:    &testutil.Store{Delay: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGatherer(tt.embedder, tt.store, Options{K: 3, QueryTimeout: 20 * time.Millisecond}, logger.NewNop())
			bundle := g.Gather(context.Background(), newIssue(5), 0)

			assert.True(t, bundle.Degraded)
			assert.True(t, bundle.Empty())
			assert.Contains(t, bundle.DegradedReason, "retrieval degraded")
		})
	}
}

func TestSearch(t *testing.T) {
	store := testutil.NewStore()
	store.Add(issueRecord(10, "Crash when saving", "closed"), 0.91)
	store.Add(issueRecord(11, "Save is slow", "open"), 0.60)
	store.Add(issueRecord(12, "Unrelated", "open"), 0.20)

	g := NewGatherer(&testutil.Embedder{}, store, Options{}, nil)

	results, err := g.Search(context.Background(), project, "crash saving", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 10, results[0].Number)
	assert.Equal(t, "closed", results[0].State)

	store.Err = testutil.ErrUnavailable
	_, err = g.Search(context.Background(), project, "crash", 10, 0)
	assert.ErrorIs(t, err, ErrRetrievalDegraded)
}

func TestIndexer(t *testing.T) {
	store := testutil.NewStore()
	idx := NewIndexer(&testutil.Embedder{}, store, 2, false, nil)

	issues := []*models.Issue{newIssue(1), newIssue(2), newIssue(3)}
	prs := []*models.PullRequest{{Org: "acme", Repo: "widgets", Number: 7, Title: "Fix save crash", State: "merged"}}

	stats := &models.IndexStats{}
	require.NoError(t, idx.IndexIssues(context.Background(), issues, stats))
	require.NoError(t, idx.IndexPullRequests(context.Background(), prs, stats))

	assert.Equal(t, 3, stats.TotalIssues)
	assert.Equal(t, 1, stats.TotalPRs)
	assert.Equal(t, 4, stats.Indexed)
	assert.Zero(t, stats.Errors)

	require.Len(t, store.Upserted, 4)
	assert.Equal(t, "acme/widgets#1", store.Upserted[0].SourceID)
	assert.Equal(t, models.SourcePullRequest, store.Upserted[3].SourceKind)
	assert.NotEmpty(t, store.Upserted[3].Vector)
}

func TestIndexer_DryRun(t *testing.T) {
	store := testutil.NewStore()
	idx := NewIndexer(&testutil.Embedder{}, store, 10, true, nil)

	stats := &models.IndexStats{}
	require.NoError(t, idx.IndexIssues(context.Background(), []*models.Issue{newIssue(1)}, stats))
	assert.Equal(t, 1, stats.Indexed)
	assert.Empty(t, store.Upserted)
}
