// Package cache persists triage analyses and guarantees that concurrent
// requests for one issue trigger at most one synthesis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ComputeFunc produces a fresh analysis. Only the cache stores it.
type ComputeFunc func(ctx context.Context) (*models.TriageAnalysis, error)

// Options configures an AnalysisCache
type Options struct {
	HotTTL  time.Duration
	LockTTL time.Duration
	// FlightTimeout bounds one shared computation; defaults to LockTTL
	FlightTimeout time.Duration
	// Remote is an optional cross-process lock taken after the local one
	Remote Locker
}

// AnalysisCache fronts the durable store with a hot in-memory layer and
// per-issue locking
type AnalysisCache struct {
	store      *SQLiteStore
	hot        *gocache.Cache
	local      *localLocker
	remote     Locker
	lockTTL    time.Duration
	flightTTL  time.Duration
	group      singleflight.Group
	accountant *cost.Accountant
	log        logger.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context a shared computation runs under. It is cancelled
// only when every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates an analysis cache over store
func New(store *SQLiteStore, accountant *cost.Accountant, opts Options, log logger.Logger) *AnalysisCache {
	if opts.HotTTL == 0 {
		opts.HotTTL = time.Hour
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.FlightTimeout == 0 {
		opts.FlightTimeout = opts.LockTTL
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &AnalysisCache{
		store:      store,
		hot:        gocache.New(opts.HotTTL, 2*opts.HotTTL),
		local:      newLocalLocker(),
		remote:     opts.Remote,
		lockTTL:    opts.LockTTL,
		flightTTL:  opts.FlightTimeout,
		accountant: accountant,
		log:        log,
		flights:    make(map[string]*flight),
	}
}

func issueKey(project string, number int) string {
	return models.IssueSourceID(project, number)
}

// GetOrCreate returns the current analysis of an issue, computing and
// storing it when absent or when force is set. Concurrent calls for the
// same issue share one computation; only the caller that ran it reports a
// fresh result; the others see a cache hit.
func (c *AnalysisCache) GetOrCreate(ctx context.Context, project string, number int, force bool, compute ComputeFunc) (*models.AnalysisResult, error) {
	key := issueKey(project, number)

	if !force {
		if a, ok := c.hotGet(key); ok {
			return c.hit(a), nil
		}
	}

	flightKey := key
	if force {
		flightKey += ":force"
	}

	res, err := c.join(ctx, flightKey, project, number, force, compute)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled) {
		// Joined a flight whose callers had all left just before us
		res, err = c.join(ctx, flightKey, project, number, force, compute)
	}
	return res, err
}

func (c *AnalysisCache) join(ctx context.Context, flightKey, project string, number int, force bool, compute ComputeFunc) (*models.AnalysisResult, error) {
	f := c.attach(ctx, flightKey)
	defer c.detach(flightKey, f)

	leader := false
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		leader = true
		return c.getOrCreate(f.ctx, project, number, force, compute)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*models.AnalysisResult)
		if !leader && !res.FromCache {
			// Another caller paid for this one
			return c.hit(res.Analysis), nil
		}
		return &res, nil
	}
}

func (c *AnalysisCache) attach(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTTL)
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *AnalysisCache) detach(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *AnalysisCache) getOrCreate(ctx context.Context, project string, number int, force bool, compute ComputeFunc) (*models.AnalysisResult, error) {
	key := issueKey(project, number)

	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another flight or process may have stored it while we waited
	if !force {
		existing, err := c.store.Current(ctx, project, number)
		switch {
		case err == nil:
			c.hot.SetDefault(key, existing)
			return c.hit(existing), nil
		case !errors.Is(err, ErrNotCached):
			return nil, err
		}
	}

	a, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if force {
		err = c.store.Replace(ctx, a)
	} else {
		err = c.store.Insert(ctx, a)
	}

	if errors.Is(err, ErrCacheConflict) {
		// Lost the race to a writer that does not share our lock
		winner, rerr := c.store.Current(ctx, project, number)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read winning analysis: %w", rerr)
		}
		c.log.Warn("cache", "Concurrent analysis discarded", map[string]interface{}{
			"project": project,
			"issue":   number,
			"kept":    winner.ID,
			"dropped": a.ID,
		})
		c.hot.SetDefault(key, winner)
		return &models.AnalysisResult{Analysis: winner, FromCache: true}, nil
	}
	if err != nil {
		return nil, err
	}

	c.hot.SetDefault(key, a)
	return &models.AnalysisResult{Analysis: a, FromCache: false}, nil
}

func (c *AnalysisCache) lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := c.local.Lock(ctx, key, c.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if c.remote == nil {
		return unlockLocal, nil
	}

	unlockRemote, err := c.remote.Lock(ctx, key, c.lockTTL)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}

func (c *AnalysisCache) hotGet(key string) (*models.TriageAnalysis, bool) {
	v, ok := c.hot.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.(*models.TriageAnalysis)
	return a, ok
}

func (c *AnalysisCache) hit(a *models.TriageAnalysis) *models.AnalysisResult {
	return &models.AnalysisResult{
		Analysis:  a,
		FromCache: true,
		CostSaved: c.accountant.Saved(a),
	}
}

// Get returns the current analysis without computing
func (c *AnalysisCache) Get(ctx context.Context, project string, number int) (*models.TriageAnalysis, error) {
	key := issueKey(project, number)
	if a, ok := c.hotGet(key); ok {
		return a, nil
	}
	a, err := c.store.Current(ctx, project, number)
	if err != nil {
		return nil, err
	}
	c.hot.SetDefault(key, a)
	return a, nil
}

// History lists every stored version of an issue, newest first
func (c *AnalysisCache) History(ctx context.Context, project string, number int) ([]*models.TriageAnalysis, error) {
	return c.store.History(ctx, project, number)
}

// Stats computes the category breakdown of a project. openIssues are the
// currently open issue numbers; those without an analysis count as
// needing triage.
func (c *AnalysisCache) Stats(ctx context.Context, project string, openIssues []int) (*models.CategoryStats, error) {
	rows, err := c.store.CurrentSummaries(ctx, project)
	if err != nil {
		return nil, err
	}

	stats := models.NewCategoryStats(project)
	analyzed := make(map[int]bool, len(rows))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, r := range rows {
		analyzed[r.IssueNumber] = true
		stats.Analyzed++
		// Legacy rows have no decision until migrated
		if r.Decision.Valid() {
			stats.Decisions[r.Decision]++
		}
		if r.Priority != "" {
			stats.Priorities[r.Priority]++
		}
		if r.RuleMatched {
			stats.RuleMatched++
		}
		if !r.CreatedAt.Before(today) {
			stats.TodayCount++
		}
		stats.TotalCost += r.TotalCost
	}

	for _, n := range openIssues {
		if !analyzed[n] {
			stats.NeedsTriageCount++
		}
	}
	return stats, nil
}

// Invalidate drops an issue from the hot layer
func (c *AnalysisCache) Invalidate(project string, number int) {
	c.hot.Delete(issueKey(project, number))
}

// Close closes the durable store
func (c *AnalysisCache) Close() error {
	return c.store.Close()
}
