package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/events"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

var (
	// ErrBatchTooLarge is returned when a batch exceeds batch.max_issues
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrClosed is returned when a batch is started on a closed engine
	ErrClosed = errors.New("engine is closed")
)

// BatchTracker keeps the progress of recent batches for polling and the
// cancel functions of the running ones
type BatchTracker struct {
	mu      sync.Mutex
	items   *gocache.Cache
	cancels map[string]context.CancelFunc
}

// NewBatchTracker creates a tracker whose records expire after ttl
func NewBatchTracker(ttl time.Duration) *BatchTracker {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &BatchTracker{
		items:   gocache.New(ttl, 2*ttl),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new batch in the not_started state
func (t *BatchTracker) Create(project string, total int) string {
	id := uuid.New().String()
	t.items.SetDefault(id, &models.BatchStatus{
		ID:        id,
		ProjectID: project,
		Status:    models.BatchNotStarted,
		Total:     total,
		Errors:    []string{},
	})
	return id
}

// Update mutates a batch record under the tracker lock
func (t *BatchTracker) Update(id string, fn func(s *models.BatchStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.items.Get(id); ok {
		fn(v.(*models.BatchStatus))
	}
}

// Get returns a copy of a batch record
func (t *BatchTracker) Get(id string) (models.BatchStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items.Get(id)
	if !ok {
		return models.BatchStatus{}, false
	}
	s := *v.(*models.BatchStatus)
	s.Errors = append([]string(nil), s.Errors...)
	return s, true
}

// Track makes a running batch cancellable
func (t *BatchTracker) Track(id string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels[id] = cancel
}

// Release forgets the cancel function of a finished batch
func (t *BatchTracker) Release(id string) {
	t.mu.Lock()
	cancel, ok := t.cancels[id]
	delete(t.cancels, id)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// Cancel stops a running batch. It reports false for unknown ids; a batch
// that already finished is left as is.
func (t *BatchTracker) Cancel(id string) (models.BatchStatus, bool) {
	t.mu.Lock()
	cancel, running := t.cancels[id]
	t.mu.Unlock()
	if running {
		cancel()
	}
	return t.Get(id)
}

// CancelAll stops every running batch
func (t *BatchTracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.cancels {
		cancel()
	}
}

// BatchStatus returns the progress of a batch started by this engine
func (e *Engine) BatchStatus(id string) (models.BatchStatus, bool) {
	return e.batches.Get(id)
}

// CancelBatch stops a running batch. Issues already analyzed stay cached
// and the batch ends in the cancelled state.
func (e *Engine) CancelBatch(id string) (models.BatchStatus, bool) {
	status, ok := e.batches.Cancel(id)
	if ok {
		e.log.Info("engine", "Batch cancel requested", map[string]interface{}{
			"batch":  id,
			"status": string(status.Status),
		})
	}
	return status, ok
}

// BatchAnalyze analyzes many issues with a bounded worker pool. onResult,
// when set, is called once per finished issue, never concurrently.
// Cancelling ctx stops new issues from starting; finished results are kept
// in the summary and in the cache. Repeated issue numbers are analyzed
// once.
func (e *Engine) BatchAnalyze(ctx context.Context, project string, numbers []int, onResult func(models.BatchItemResult)) (*models.BatchSummary, error) {
	numbers = uniqueNumbers(numbers)
	if err := e.validateBatch(project, numbers); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	id := e.batches.Create(project, len(numbers))
	e.batches.Track(id, cancel)
	defer e.batches.Release(id)

	return e.runBatch(ctx, id, project, numbers, onResult), nil
}

// StartBatch runs a batch in the background and returns its id for
// polling with BatchStatus. The batch outlives the caller's request; it
// stops on CancelBatch or Close.
func (e *Engine) StartBatch(project string, numbers []int) (string, error) {
	numbers = uniqueNumbers(numbers)
	if err := e.validateBatch(project, numbers); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := e.batches.Create(project, len(numbers))
	e.batches.Track(id, cancel)

	e.running.Add(1)
	go func() {
		defer e.running.Done()
		defer e.batches.Release(id)
		e.runBatch(ctx, id, project, numbers, nil)
	}()
	return id, nil
}

// uniqueNumbers drops repeated issue numbers, keeping first occurrences
func uniqueNumbers(numbers []int) []int {
	seen := make(map[int]bool, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (e *Engine) validateBatch(project string, numbers []int) error {
	if _, _, err := models.ParseProject(project); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(numbers) == 0 {
		return fmt.Errorf("%w: no issues given", ErrInvalidRequest)
	}
	if limit := e.cfg.Batch.MaxIssues; limit > 0 && len(numbers) > limit {
		return fmt.Errorf("%w: %d issues, limit is %d", ErrBatchTooLarge, len(numbers), limit)
	}
	for _, n := range numbers {
		if n <= 0 {
			return fmt.Errorf("%w: issue number must be positive, got %d", ErrInvalidRequest, n)
		}
	}
	return nil
}

func (e *Engine) runBatch(ctx context.Context, id, project string, numbers []int, onResult func(models.BatchItemResult)) *models.BatchSummary {
	ctx, span := e.tracer.Start(ctx, "engine.BatchAnalyze", trace.WithAttributes(
		attribute.String("triage.project", project),
		attribute.Int("triage.batch_size", len(numbers)),
		attribute.String("triage.batch_id", id),
	))
	defer span.End()

	start := time.Now().UTC()
	e.batches.Update(id, func(s *models.BatchStatus) {
		s.Status = models.BatchRunning
		s.StartTime = start
	})
	e.log.Info("engine", "Batch started", map[string]interface{}{
		"batch":   id,
		"project": project,
		"total":   len(numbers),
		"workers": e.cfg.Batch.Workers,
	})

	var (
		mu      sync.Mutex
		tracker = cost.NewTracker()
		summary = &models.BatchSummary{Total: len(numbers), Results: make([]models.BatchItemResult, 0, len(numbers))}
	)

	finish := func(number int, res *models.AnalysisResult, err error) {
		mu.Lock()
		defer mu.Unlock()

		item := models.BatchItemResult{IssueNumber: number}
		if err != nil {
			summary.Failed++
			item.Error = err.Error()
		} else {
			e.record(tracker, res)
			item.Analysis = res.Analysis
			item.FromCache = res.FromCache
			switch {
			case res.FromCache:
				summary.CacheHits++
			case res.Analysis.IsRuleBased():
				summary.RuleHits++
			default:
				summary.Paid++
				summary.TotalCost = summary.TotalCost.Add(res.Analysis.Cost)
			}
		}
		summary.Processed++

		running := tracker.Summary()
		item.RunningCost = running.TotalCost
		item.RunningSaved = running.Saved
		summary.Results = append(summary.Results, item)

		e.batches.Update(id, func(s *models.BatchStatus) {
			s.Processed = summary.Processed
			s.CurrentIssue = number
			s.RunningCost = running.TotalCost
			if err != nil {
				s.Errors = append(s.Errors, fmt.Sprintf("#%d: %v", number, err))
			}
		})

		if onResult != nil {
			onResult(item)
		}
	}

	var g errgroup.Group
	workers := e.cfg.Batch.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, n := range numbers {
		if ctx.Err() != nil {
			break
		}
		number := n
		g.Go(func() error {
			// A slot may free up only after cancellation
			if ctx.Err() != nil {
				return nil
			}
			res, err := e.analyze(ctx, project, number, false, true)
			if err != nil && ctx.Err() != nil {
				// Interrupted by cancellation, not a failure of the issue
				return nil
			}
			finish(number, res, err)
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	summary.Cancelled = ctx.Err() != nil
	summary.Skipped = summary.Total - summary.Processed
	summary.CostSaved = tracker.Summary().Saved
	mu.Unlock()

	end := time.Now().UTC()
	e.batches.Update(id, func(s *models.BatchStatus) {
		s.EndTime = &end
		switch {
		case summary.Cancelled:
			s.Status = models.BatchCancelled
		case summary.Failed > 0 && summary.Failed == summary.Processed:
			s.Status = models.BatchFailed
		default:
			s.Status = models.BatchCompleted
		}
	})

	// Use a fresh context so a cancelled batch still reports
	if err := e.publisher.Publish(context.Background(), events.BatchCompleted(project, summary)); err != nil {
		e.log.Warn("engine", "Failed to publish event", map[string]interface{}{"error": err.Error()})
	}

	e.log.Info("engine", "Batch finished", map[string]interface{}{
		"batch":      id,
		"project":    project,
		"processed":  summary.Processed,
		"paid":       summary.Paid,
		"cache_hits": summary.CacheHits,
		"rule_hits":  summary.RuleHits,
		"failed":     summary.Failed,
		"cancelled":  summary.Cancelled,
		"cost":       summary.TotalCost.TotalCost,
		"duration":   end.Sub(start).String(),
	})
	return summary
}
