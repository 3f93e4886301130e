// Package evidence retrieves similarity-ranked candidates for an issue
// from every corpus pool of its project.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kavirubc/gh-triage/internal/embedding"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/vectordb"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ErrRetrievalDegraded marks a retrieval that could not reach the store.
// Gather absorbs it into EvidenceBundle.Degraded; Search returns it.
var ErrRetrievalDegraded = errors.New("retrieval degraded")

const excerptLen = 300

// Options bounds retrieval
type Options struct {
	K                int
	EmbeddingTimeout time.Duration
	QueryTimeout     time.Duration
}

// Gatherer queries the vector store with the issue's own embedding
type Gatherer struct {
	embedder embedding.Provider
	store    vectordb.Store
	opts     Options
	log      logger.Logger
}

// NewGatherer creates a new evidence gatherer
func NewGatherer(embedder embedding.Provider, store vectordb.Store, opts Options, log logger.Logger) *Gatherer {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.EmbeddingTimeout == 0 {
		opts.EmbeddingTimeout = 10 * time.Second
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Gatherer{embedder: embedder, store: store, opts: opts, log: log}
}

// Gather returns the top-k candidates of every pool, most similar first,
// with the issue itself removed. No threshold is applied. Any failure
// yields an empty bundle with Degraded set instead of an error.
func (g *Gatherer) Gather(ctx context.Context, issue *models.Issue, k int) *models.EvidenceBundle {
	if k <= 0 {
		k = g.opts.K
	}
	project := issue.FullRepo()

	vector, err := g.embed(ctx, embedding.PrepareIssueText(issue.Title, issue.Body))
	if err != nil {
		return g.degraded(project, issue.Number, err)
	}

	bundle := &models.EvidenceBundle{}
	var mu sync.Mutex

	qctx, cancel := context.WithTimeout(ctx, g.opts.QueryTimeout)
	defer cancel()

	eg, egCtx := errgroup.WithContext(qctx)
	for _, kind := range models.SourceKinds {
		kind := kind
		eg.Go(func() error {
			limit := k
			if kind == models.SourceIssue {
				// The issue itself is usually its own nearest neighbour
				limit++
			}

			matches, err := g.store.Query(egCtx, vectordb.QueryRequest{
				Vector:     vector,
				K:          limit,
				ProjectID:  project,
				SourceKind: kind,
			})
			if err != nil {
				return fmt.Errorf("%s pool: %w", kind, err)
			}

			candidates := toCandidates(matches, kind, issue.Number)
			if len(candidates) > k {
				candidates = candidates[:k]
			}

			mu.Lock()
			bundle.SetPool(kind, candidates)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return g.degraded(project, issue.Number, err)
	}

	g.log.Debug("evidence", "Evidence gathered", map[string]interface{}{
		"project": project,
		"issue":   issue.Number,
		"issues":  len(bundle.SimilarIssues),
		"code":    len(bundle.SimilarCode),
		"docs":    len(bundle.SimilarDocs),
		"prs":     len(bundle.SimilarPRs),
	})
	return bundle
}

// Search runs a free-text query over the issue pool and keeps hits at or
// above minSimilarity
func (g *Gatherer) Search(ctx context.Context, project, text string, k int, minSimilarity float64) ([]models.SearchResult, error) {
	if k <= 0 {
		k = g.opts.K
	}

	vector, err := g.embed(ctx, embedding.PrepareIssueText(text, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalDegraded, err)
	}

	qctx, cancel := context.WithTimeout(ctx, g.opts.QueryTimeout)
	defer cancel()

	matches, err := g.store.Query(qctx, vectordb.QueryRequest{
		Vector:     vector,
		K:          k,
		ProjectID:  project,
		SourceKind: models.SourceIssue,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalDegraded, err)
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < minSimilarity {
			continue
		}
		results = append(results, models.SearchResult{
			Number:     m.Record.Number,
			Title:      m.Record.TitleOrPath,
			State:      m.Record.State,
			URL:        m.Record.URL,
			Similarity: clamp(m.Score),
		})
	}
	return results, nil
}

func (g *Gatherer) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, g.opts.EmbeddingTimeout)
	defer cancel()

	vector, err := g.embedder.Embed(ectx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	return vector, nil
}

func (g *Gatherer) degraded(project string, number int, err error) *models.EvidenceBundle {
	g.log.Warn("evidence", "Retrieval degraded, continuing without evidence", map[string]interface{}{
		"project": project,
		"issue":   number,
		"error":   err.Error(),
	})
	return &models.EvidenceBundle{
		SimilarIssues:  []models.EvidenceCandidate{},
		SimilarCode:    []models.EvidenceCandidate{},
		SimilarDocs:    []models.EvidenceCandidate{},
		SimilarPRs:     []models.EvidenceCandidate{},
		Degraded:       true,
		DegradedReason: fmt.Sprintf("%v: %v", ErrRetrievalDegraded, err),
	}
}

func toCandidates(matches []vectordb.Match, kind models.SourceKind, selfNumber int) []models.EvidenceCandidate {
	candidates := make([]models.EvidenceCandidate, 0, len(matches))
	for _, m := range matches {
		if kind == models.SourceIssue && m.Record.Number == selfNumber {
			continue
		}
		candidates = append(candidates, models.EvidenceCandidate{
			SourceKind:  kind,
			SourceID:    m.Record.SourceID,
			TitleOrPath: m.Record.TitleOrPath,
			Similarity:  clamp(m.Score),
			Excerpt:     embedding.TruncateText(m.Record.Excerpt, excerptLen),
			Number:      m.Record.Number,
			State:       m.Record.State,
			URL:         m.Record.URL,
			Line:        m.Record.Line,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return candidates
}

// clamp maps a store score into [0,1]
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
