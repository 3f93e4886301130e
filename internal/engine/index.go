package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Corpus lists the tracker items that feed the issue and PR pools
type Corpus interface {
	ListIssues(ctx context.Context, project string, opts github.ListOptions) ([]*models.Issue, int, error)
	ListPullRequests(ctx context.Context, project, state string, max int) ([]*models.PullRequest, error)
}

// PoolWriter embeds and stores corpus items
type PoolWriter interface {
	IndexIssues(ctx context.Context, issues []*models.Issue, stats *models.IndexStats) error
	IndexPullRequests(ctx context.Context, prs []*models.PullRequest, stats *models.IndexStats) error
}

// CollectionEnsurer creates the vector collection on first use
type CollectionEnsurer interface {
	EnsureCollection(ctx context.Context, dims int) error
}

// IndexOptions configures IndexProject
type IndexOptions struct {
	// MaxIssues caps the number of issues fetched (0 = all)
	MaxIssues int
	// PullRequests also indexes pull requests into the PR pool
	PullRequests bool
	// Since only indexes items updated within this window, e.g. "24h" or "7d"
	Since string
}

// CorpusIndexer fills the issue and PR pools of a project
type CorpusIndexer struct {
	corpus     Corpus
	writer     PoolWriter
	collection CollectionEnsurer
	dims       int
	dryRun     bool
	log        logger.Logger
}

// NewCorpusIndexer creates an indexer. collection may be nil when the store
// manages its own schema.
func NewCorpusIndexer(corpus Corpus, writer PoolWriter, collection CollectionEnsurer, dims int, dryRun bool, log logger.Logger) *CorpusIndexer {
	if log == nil {
		log = logger.NewNop()
	}
	return &CorpusIndexer{
		corpus:     corpus,
		writer:     writer,
		collection: collection,
		dims:       dims,
		dryRun:     dryRun,
		log:        log,
	}
}

// IndexProject indexes the issues (and optionally pull requests) of a project
func (c *CorpusIndexer) IndexProject(ctx context.Context, project string, opts IndexOptions) (*models.IndexStats, error) {
	start := time.Now()
	stats := &models.IndexStats{}

	if _, _, err := models.ParseProject(project); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var since time.Time
	if opts.Since != "" {
		var err error
		if since, err = ParseSince(opts.Since, time.Now()); err != nil {
			return nil, fmt.Errorf("%w: invalid since duration: %v", ErrInvalidRequest, err)
		}
	}

	if !c.dryRun && c.collection != nil {
		if err := c.collection.EnsureCollection(ctx, c.dims); err != nil {
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
	}

	issues, err := c.listIssues(ctx, project, since, opts.MaxIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues: %w", err)
	}
	c.log.Info("index", "Fetched issues", map[string]interface{}{"project": project, "count": len(issues)})

	if err := c.writer.IndexIssues(ctx, issues, stats); err != nil {
		return nil, err
	}

	if opts.PullRequests {
		prs, err := c.corpus.ListPullRequests(ctx, project, "all", opts.MaxIssues)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pull requests: %w", err)
		}
		prs = updatedSince(prs, since)
		c.log.Info("index", "Fetched pull requests", map[string]interface{}{"project": project, "count": len(prs)})

		if err := c.writer.IndexPullRequests(ctx, prs, stats); err != nil {
			return nil, err
		}
	}

	stats.DurationMs = int(time.Since(start).Milliseconds())
	return stats, nil
}

func (c *CorpusIndexer) listIssues(ctx context.Context, project string, since time.Time, max int) ([]*models.Issue, error) {
	const perPage = 100
	var all []*models.Issue

	for page := 1; ; page++ {
		issues, raw, err := c.corpus.ListIssues(ctx, project, github.ListOptions{
			State:   "all",
			PerPage: perPage,
			Page:    page,
			Since:   since,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, issues...)

		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if raw < perPage {
			return all, nil
		}
	}
}

func updatedSince(prs []*models.PullRequest, since time.Time) []*models.PullRequest {
	if since.IsZero() {
		return prs
	}
	out := prs[:0]
	for _, pr := range prs {
		if !pr.UpdatedAt.Before(since) {
			out = append(out, pr)
		}
	}
	return out
}

// ParseSince parses durations like "24h", "90m" or "7d" and returns the
// instant that far before now
func ParseSince(s string, now time.Time) (time.Time, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("invalid day count %q", s)
		}
		return now.Add(-time.Duration(n) * 24 * time.Hour), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}
