package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kavirubc/gh-triage/internal/cache"
	"github.com/Kavirubc/gh-triage/internal/compose"
	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/events"
	"github.com/Kavirubc/gh-triage/internal/evidence"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/internal/pipeline"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/internal/testutil"
	"github.com/Kavirubc/gh-triage/internal/triage"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

const project = "acme/widgets"

type fakeIssues struct {
	mu     sync.Mutex
	failOn map[int]error
	open   []int
}

func (f *fakeIssues) FetchIssue(ctx context.Context, project string, number int) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[number]; err != nil {
		return nil, err
	}
	return &models.Issue{
		Org:    "acme",
		Repo:   "widgets",
		Number: number,
		Title:  fmt.Sprintf("Settings page layout glitch %d", number),
		Body:   "The sidebar overlaps the form on narrow screens.",
		State:  "open",
	}, nil
}

func (f *fakeIssues) OpenIssueNumbers(ctx context.Context, project string) ([]int, error) {
	return f.open, nil
}

type recordingApplier struct {
	applied []models.SuggestedResponse
	dryRun  bool
}

func (r *recordingApplier) ApplyResponse(ctx context.Context, project string, number int, resp models.SuggestedResponse) (*github.ApplyResult, error) {
	r.applied = append(r.applied, resp)
	return &github.ApplyResult{CommentURL: "https://github.com/acme/widgets/issues/1#issuecomment-1", DryRun: r.dryRun}, nil
}

type fixture struct {
	engine     *Engine
	llm        *testutil.LLM
	store      *testutil.Store
	issues     *fakeIssues
	applier    *recordingApplier
	events     *events.Recorder
	accountant *cost.Accountant
}

var usage = &llm.Usage{InputTokens: 1000, OutputTokens: 200}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Batch.ProviderRPS = 1000
	if mutate != nil {
		mutate(cfg)
	}

	evaluator, err := rules.NewEvaluator(&cfg.Rules)
	require.NoError(t, err)

	store := testutil.NewStore()
	embedder := &testutil.Embedder{}
	provider := &testutil.LLM{
		Text:  `{"decision":"NEEDS_INVESTIGATION","confidence":0.7,"primary_message":"Looks like a real bug"}`,
		Usage: usage,
	}
	accountant := cost.NewAccountant(cfg.Cost)
	gatherer := evidence.NewGatherer(embedder, store, evidence.Options{}, nil)

	pipe := pipeline.NewBuilder(cfg, pipeline.Deps{
		Rules:       evaluator,
		Gatherer:    gatherer,
		Synthesizer: triage.NewSynthesizer(cfg, provider, accountant, nil, nil),
		Composer:    compose.New(""),
		Indexer:     evidence.NewIndexer(embedder, store, 10, false, nil),
	}, false).BuildDefault()

	sqlite, err := cache.OpenSQLiteStore(filepath.Join(t.TempDir(), "analyses.db"))
	require.NoError(t, err)

	f := &fixture{
		llm:        provider,
		store:      store,
		issues:     &fakeIssues{failOn: map[int]error{}},
		applier:    &recordingApplier{},
		events:     &events.Recorder{},
		accountant: accountant,
	}
	f.engine = New(cfg, Deps{
		Issues:     f.issues,
		Applier:    f.applier,
		Analyzer:   pipe,
		Cache:      cache.New(sqlite, accountant, cache.Options{}, nil),
		Searcher:   gatherer,
		Accountant: accountant,
		Publisher:  f.events,
	})
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func numbers(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

func TestAnalyze_MissThenHit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.Analyze(ctx, project, 7, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, models.DecisionNeedsInvestigation, first.Analysis.Decision)
	assert.Greater(t, first.Analysis.Cost.TotalCost, 0.0)
	assert.Zero(t, first.CostSaved)

	second, err := f.engine.Analyze(ctx, project, 7, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Analysis.ID, second.Analysis.ID)
	assert.Equal(t, first.Analysis.Cost.TotalCost, second.CostSaved)

	assert.Equal(t, 1, f.llm.Calls())
	assert.Equal(t, []string{events.TypeAnalysisCompleted, events.TypeAnalysisCompleted}, f.events.Types())

	session := f.engine.SessionCost()
	assert.Equal(t, 1, session.Syntheses)
	assert.Equal(t, 1, session.CacheHits)
}

func TestAnalyze_ConcurrentRequestsShareOneSynthesis(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.Delay = 50 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.Analyze(context.Background(), project, 11, false)
			errs[i] = err
			if err == nil {
				ids[i] = res.Analysis.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.llm.Calls())

	// Callers that joined the synthesis are accounted as cache hits
	session := f.engine.SessionCost()
	assert.Equal(t, 1, session.Syntheses)
	assert.Equal(t, callers-1, session.CacheHits)
	assert.InDelta(t, f.accountant.Compute(usage).TotalCost, session.TotalCost, 1e-6)
}

func TestAnalyze_ForceKeepsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.Analyze(ctx, project, 3, false)
	require.NoError(t, err)

	forced, err := f.engine.Analyze(ctx, project, 3, true)
	require.NoError(t, err)
	assert.False(t, forced.FromCache)
	assert.NotEqual(t, first.Analysis.ID, forced.Analysis.ID)

	history, err := f.engine.History(ctx, project, 3)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, forced.Analysis.ID, history[0].ID)
	assert.Equal(t, 2, f.llm.Calls())
}

func TestAnalyze_InvalidRequest(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		project string
		number  int
	}{
		{"missing repo", "acme", 1},
		{"empty project", "", 1},
		{"zero number", project, 0},
		{"negative number", project, -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Analyze(context.Background(), tt.project, tt.number, false)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Equal(t, 0, f.llm.Calls())
}

func TestAnalyze_FetchFailureStoresNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.issues.failOn[404] = github.ErrNotFound

	_, err := f.engine.Analyze(context.Background(), project, 404, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, github.ErrNotFound))

	history, err := f.engine.History(context.Background(), project, 404)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events.Events())
}

func TestAnalyze_SynthesisFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.Text = "I cannot decide"

	_, err := f.engine.Analyze(context.Background(), project, 8, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, triage.ErrSynthesisFailed))

	_, err = f.engine.Respond(context.Background(), project, 8, 0)
	assert.ErrorIs(t, err, ErrNotAnalyzed)
}

func TestBatchAnalyze_CacheHitsAreNotPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, n := range numbers(1, 10) {
		_, err := f.engine.Analyze(ctx, project, n, false)
		require.NoError(t, err)
	}

	var (
		mu    sync.Mutex
		items []models.BatchItemResult
	)
	summary, err := f.engine.BatchAnalyze(ctx, project, numbers(1, 50), func(item models.BatchItemResult) {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, item)
	})
	require.NoError(t, err)

	unit := f.accountant.Compute(usage).TotalCost
	assert.Equal(t, 50, summary.Total)
	assert.Equal(t, 50, summary.Processed)
	assert.Equal(t, 40, summary.Paid)
	assert.Equal(t, 10, summary.CacheHits)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.False(t, summary.Cancelled)
	assert.InDelta(t, 40*unit, summary.TotalCost.TotalCost, 1e-6)
	assert.InDelta(t, 10*unit, summary.CostSaved, 1e-6)

	require.Len(t, items, 50)
	assert.InDelta(t, summary.TotalCost.TotalCost, items[len(items)-1].RunningCost, 1e-6)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i].RunningCost, items[i-1].RunningCost)
	}

	assert.Equal(t, 50, f.llm.Calls())
	assert.Contains(t, f.events.Types(), events.TypeBatchCompleted)
}

func TestBatchAnalyze_CancelKeepsFinishedResults(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Batch.Workers = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := 0
	summary, err := f.engine.BatchAnalyze(ctx, project, numbers(1, 20), func(item models.BatchItemResult) {
		seen++
		if seen == 3 {
			cancel()
		}
	})
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 17, summary.Skipped)
	require.Len(t, summary.Results, 3)

	// Finished issues stay cached
	for _, item := range summary.Results {
		history, err := f.engine.History(context.Background(), project, item.IssueNumber)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
}

func TestBatchAnalyze_RecordsPerIssueErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.issues.failOn[2] = github.ErrNotFound

	summary, err := f.engine.BatchAnalyze(context.Background(), project, []int{1, 2, 3}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Paid)

	var failed []int
	for _, item := range summary.Results {
		if item.Error != "" {
			failed = append(failed, item.IssueNumber)
			assert.Nil(t, item.Analysis)
		}
	}
	assert.Equal(t, []int{2}, failed)
}

func TestBatchAnalyze_Validation(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Batch.MaxIssues = 5 })

	_, err := f.engine.BatchAnalyze(context.Background(), project, numbers(1, 6), nil)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = f.engine.BatchAnalyze(context.Background(), project, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.engine.BatchAnalyze(context.Background(), project, []int{1, 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStartBatch_Status(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.engine.StartBatch(project, []int{4, 5, 6})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := f.engine.BatchStatus(id)
		return ok && s.Status == models.BatchCompleted
	}, 5*time.Second, 10*time.Millisecond)

	s, _ := f.engine.BatchStatus(id)
	assert.Equal(t, project, s.ProjectID)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3, s.Processed)
	assert.Empty(t, s.Errors)
	assert.NotNil(t, s.EndTime)
	assert.InDelta(t, 3*f.accountant.Compute(usage).TotalCost, s.RunningCost, 1e-6)

	_, ok := f.engine.BatchStatus("missing")
	assert.False(t, ok)
}

func TestBatchAnalyze_RepeatedNumbersAnalyzedOnce(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.engine.BatchAnalyze(context.Background(), project, []int{7, 7, 7, 8, 7}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Paid)
	assert.Zero(t, summary.CacheHits)
	assert.InDelta(t, 2*f.accountant.Compute(usage).TotalCost, summary.TotalCost.TotalCost, 1e-6)
	assert.Equal(t, 2, f.llm.Calls())
}

func TestCancelBatch(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Batch.Workers = 1 })
	f.llm.Delay = 30 * time.Millisecond

	id, err := f.engine.StartBatch(project, numbers(1, 20))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := f.engine.BatchStatus(id)
		return s.Processed >= 1
	}, 5*time.Second, 5*time.Millisecond)

	_, ok := f.engine.CancelBatch(id)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		s, _ := f.engine.BatchStatus(id)
		return s.Status == models.BatchCancelled
	}, 5*time.Second, 5*time.Millisecond)

	s, _ := f.engine.BatchStatus(id)
	assert.Less(t, s.Processed, 20)
	assert.NotNil(t, s.EndTime)

	calls := f.llm.Calls()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, f.llm.Calls(), "no synthesis starts after cancellation")

	_, ok = f.engine.CancelBatch("missing")
	assert.False(t, ok)
}

func TestClose_StopsRunningBatches(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Batch.Workers = 1 })
	f.llm.Delay = 30 * time.Millisecond

	id, err := f.engine.StartBatch(project, numbers(1, 20))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, _ := f.engine.BatchStatus(id)
		return s.Status == models.BatchRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.Close())

	// Close returns only once the batch has stopped
	s, ok := f.engine.BatchStatus(id)
	require.True(t, ok)
	assert.Equal(t, models.BatchCancelled, s.Status)
	assert.Contains(t, f.events.Types(), events.TypeBatchCompleted)

	_, err = f.engine.StartBatch(project, []int{1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBatchTracker(t *testing.T) {
	tr := NewBatchTracker(time.Minute)
	id := tr.Create(project, 2)

	s, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.BatchNotStarted, s.Status)

	tr.Update(id, func(s *models.BatchStatus) {
		s.Errors = append(s.Errors, "#1: boom")
	})
	s, _ = tr.Get(id)
	s.Errors[0] = "changed"

	again, _ := tr.Get(id)
	assert.Equal(t, []string{"#1: boom"}, again.Errors)
}

func TestRespond(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.engine.Analyze(ctx, project, 21, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Analysis.SuggestedResponses)

	out, err := f.engine.Respond(ctx, project, 21, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, out.CommentURL)
	require.Len(t, f.applier.applied, 1)
	assert.Equal(t, res.Analysis.SuggestedResponses[0].Type, f.applier.applied[0].Type)
	assert.Contains(t, f.events.Types(), events.TypeResponsePosted)

	// Posting never changes the stored analysis
	history, err := f.engine.History(ctx, project, 21)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Analysis.ID, history[0].ID)

	_, err = f.engine.Respond(ctx, project, 21, len(res.Analysis.SuggestedResponses))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.engine.Respond(ctx, project, 99, 0)
	assert.ErrorIs(t, err, ErrNotAnalyzed)
}

func TestRespond_DryRunPublishesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.applier.dryRun = true
	ctx := context.Background()

	_, err := f.engine.Analyze(ctx, project, 22, false)
	require.NoError(t, err)

	_, err = f.engine.Respond(ctx, project, 22, 0)
	require.NoError(t, err)
	assert.NotContains(t, f.events.Types(), events.TypeResponsePosted)
}

func TestCategoryStats(t *testing.T) {
	f := newFixture(t, nil)
	f.issues.open = []int{1, 2, 3}
	ctx := context.Background()

	for _, n := range []int{1, 2} {
		_, err := f.engine.Analyze(ctx, project, n, false)
		require.NoError(t, err)
	}

	stats, err := f.engine.CategoryStats(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Analyzed)
	assert.Equal(t, 1, stats.NeedsTriageCount)
	assert.Equal(t, 2, stats.Decisions[models.DecisionNeedsInvestigation])
	assert.Equal(t, 0, stats.Decisions[models.DecisionInvalid])
	assert.Equal(t, 2, stats.TodayCount)

	_, err = f.engine.CategoryStats(ctx, "not-a-project")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSemanticSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Add(models.EmbeddingRecord{
		SourceID:    models.IssueSourceID(project, 12),
		SourceKind:  models.SourceIssue,
		ProjectID:   project,
		TitleOrPath: "Sidebar overlaps form",
		Number:      12,
		State:       "closed",
	}, 0.91)
	f.store.Add(models.EmbeddingRecord{
		SourceID:    models.IssueSourceID(project, 13),
		SourceKind:  models.SourceIssue,
		ProjectID:   project,
		TitleOrPath: "Unrelated",
		Number:      13,
	}, 0.40)

	results, err := f.engine.SemanticSearch(context.Background(), project, "sidebar overlap", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 12, results[0].Number)

	_, err = f.engine.SemanticSearch(context.Background(), project, "   ", 5, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
