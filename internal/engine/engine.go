// Package engine exposes the triage operations: analyze, batch analyze,
// category stats, semantic search, history and response write-back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Kavirubc/gh-triage/internal/cache"
	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/events"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

var (
	// ErrInvalidRequest covers malformed projects, issue numbers and indexes
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotAnalyzed is returned by Respond when the issue has no stored analysis
	ErrNotAnalyzed = errors.New("issue has not been analyzed")
)

// IssueSource reads issues from the tracker
type IssueSource interface {
	FetchIssue(ctx context.Context, project string, number int) (*models.Issue, error)
	OpenIssueNumbers(ctx context.Context, project string) ([]int, error)
}

// ResponseApplier executes a suggested response on the tracker
type ResponseApplier interface {
	ApplyResponse(ctx context.Context, project string, number int, resp models.SuggestedResponse) (*github.ApplyResult, error)
}

// Analyzer turns an issue into a fresh analysis
type Analyzer interface {
	Analyze(ctx context.Context, issue *models.Issue) (*models.TriageAnalysis, error)
}

// Searcher runs free text similarity queries over the issue pool
type Searcher interface {
	Search(ctx context.Context, project, text string, k int, minSimilarity float64) ([]models.SearchResult, error)
}

// Deps are the collaborators of an Engine. Issues, Analyzer and Cache are
// required.
type Deps struct {
	Issues     IssueSource
	Applier    ResponseApplier
	Analyzer   Analyzer
	Cache      *cache.AnalysisCache
	Searcher   Searcher
	Accountant *cost.Accountant
	Publisher  events.Publisher
	Log        logger.Logger
}

// Engine coordinates the cache, the analysis pipeline and the tracker
type Engine struct {
	cfg        *config.Config
	issues     IssueSource
	applier    ResponseApplier
	analyzer   Analyzer
	cache      *cache.AnalysisCache
	searcher   Searcher
	accountant *cost.Accountant
	publisher  events.Publisher
	session    *cost.Tracker
	batches    *BatchTracker
	limiter    *rate.Limiter
	tracer     trace.Tracer
	log        logger.Logger

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

// New creates an engine
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Accountant == nil {
		deps.Accountant = cost.NewAccountant(cfg.Cost)
	}

	burst := cfg.Batch.Workers
	if burst < 1 {
		burst = 1
	}

	return &Engine{
		cfg:        cfg,
		issues:     deps.Issues,
		applier:    deps.Applier,
		analyzer:   deps.Analyzer,
		cache:      deps.Cache,
		searcher:   deps.Searcher,
		accountant: deps.Accountant,
		publisher:  deps.Publisher,
		session:    cost.NewTracker(),
		batches:    NewBatchTracker(cfg.Batch.StatusTTL),
		limiter:    rate.NewLimiter(rate.Limit(cfg.Batch.ProviderRPS), burst),
		tracer:     otel.Tracer("gh-triage/engine"),
		log:        deps.Log,
	}
}

// Close cancels background batches, waits for them to stop and then
// releases the cache and the event publisher
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.batches.CancelAll()
	e.running.Wait()

	pubErr := e.publisher.Close()
	if err := e.cache.Close(); err != nil {
		return err
	}
	return pubErr
}

// Analyze returns the current analysis of an issue, synthesizing one when
// none is stored or when force is set
func (e *Engine) Analyze(ctx context.Context, project string, number int, force bool) (*models.AnalysisResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Analyze", trace.WithAttributes(
		attribute.String("triage.project", project),
		attribute.Int("triage.issue", number),
		attribute.Bool("triage.force", force),
	))
	defer span.End()

	res, err := e.analyze(ctx, project, number, force, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("triage.decision", string(res.Analysis.Decision)),
		attribute.Bool("triage.from_cache", res.FromCache),
	)
	return res, nil
}

// analyze is shared by Analyze and the batch workers. limited makes fresh
// syntheses wait on the provider rate limiter; cache hits never wait.
func (e *Engine) analyze(ctx context.Context, project string, number int, force, limited bool) (*models.AnalysisResult, error) {
	if err := validateIssue(project, number); err != nil {
		return nil, err
	}

	res, err := e.cache.GetOrCreate(ctx, project, number, force, func(ctx context.Context) (*models.TriageAnalysis, error) {
		issue, err := e.issues.FetchIssue(ctx, project, number)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
		}
		if limited {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return e.analyzer.Analyze(ctx, issue)
	})
	if err != nil {
		e.log.Error("engine", "Analysis failed", map[string]interface{}{
			"project": project,
			"issue":   number,
			"error":   err.Error(),
		})
		return nil, err
	}

	e.record(e.session, res)

	if err := e.publisher.Publish(ctx, events.AnalysisCompleted(res.Analysis, res.FromCache)); err != nil {
		e.log.Warn("engine", "Failed to publish event", map[string]interface{}{"error": err.Error()})
	}

	e.log.Info("engine", "Issue analyzed", map[string]interface{}{
		"project":    project,
		"issue":      number,
		"decision":   res.Analysis.Decision,
		"from_cache": res.FromCache,
		"cost":       res.Analysis.Cost.TotalCost,
		"cost_saved": res.CostSaved,
	})
	return res, nil
}

// record adds one result to a cost tracker
func (e *Engine) record(t *cost.Tracker, res *models.AnalysisResult) {
	switch {
	case res.FromCache:
		t.AddCacheHit(res.CostSaved)
	case res.Analysis.IsRuleBased():
		t.AddRuleHit(e.accountant.RuleSaving())
	default:
		t.AddSynthesis(res.Analysis.Cost)
	}
}

// SessionCost returns the running totals of this engine's lifetime
func (e *Engine) SessionCost() cost.Summary {
	return e.session.Summary()
}

// CategoryStats breaks a project's current analyses down by decision and
// priority. Open issues without an analysis count as needing triage.
func (e *Engine) CategoryStats(ctx context.Context, project string) (*models.CategoryStats, error) {
	if _, _, err := models.ParseProject(project); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	open, err := e.issues.OpenIssueNumbers(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list open issues: %w", err)
	}
	return e.cache.Stats(ctx, project, open)
}

// SemanticSearch finds issues similar to free text
func (e *Engine) SemanticSearch(ctx context.Context, project, text string, k int, minSimilarity float64) ([]models.SearchResult, error) {
	if _, _, err := models.ParseProject(project); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if e.searcher == nil {
		return nil, errors.New("semantic search is not configured")
	}
	if k <= 0 {
		k = e.cfg.Triage.EvidenceK
	}

	ctx, span := e.tracer.Start(ctx, "engine.SemanticSearch", trace.WithAttributes(
		attribute.String("triage.project", project),
		attribute.Int("triage.k", k),
	))
	defer span.End()

	return e.searcher.Search(ctx, project, text, k, minSimilarity)
}

// History lists every stored analysis of an issue, newest first
func (e *Engine) History(ctx context.Context, project string, number int) ([]*models.TriageAnalysis, error) {
	if err := validateIssue(project, number); err != nil {
		return nil, err
	}
	return e.cache.History(ctx, project, number)
}

// Respond posts suggested response number index of the current analysis.
// The stored analysis is never modified.
func (e *Engine) Respond(ctx context.Context, project string, number, index int) (*github.ApplyResult, error) {
	if err := validateIssue(project, number); err != nil {
		return nil, err
	}
	if e.applier == nil {
		return nil, errors.New("write-back is not configured")
	}

	a, err := e.cache.Get(ctx, project, number)
	if errors.Is(err, cache.ErrNotCached) {
		return nil, fmt.Errorf("%w: %s#%d", ErrNotAnalyzed, project, number)
	}
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(a.SuggestedResponses) {
		return nil, fmt.Errorf("%w: response index %d out of range (%d available)", ErrInvalidRequest, index, len(a.SuggestedResponses))
	}
	resp := a.SuggestedResponses[index]

	result, err := e.applier.ApplyResponse(ctx, project, number, resp)
	if err != nil {
		return nil, err
	}

	if !result.DryRun {
		if err := e.publisher.Publish(ctx, events.ResponsePosted(project, number, resp.Type, result.CommentURL)); err != nil {
			e.log.Warn("engine", "Failed to publish event", map[string]interface{}{"error": err.Error()})
		}
	}
	return result, nil
}

func validateIssue(project string, number int) error {
	if _, _, err := models.ParseProject(project); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if number <= 0 {
		return fmt.Errorf("%w: issue number must be positive, got %d", ErrInvalidRequest, number)
	}
	return nil
}
