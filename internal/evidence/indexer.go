package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/Kavirubc/gh-triage/internal/embedding"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/vectordb"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Indexer writes issues and pull requests into the issue and PR pools.
// Code and doc chunks come from a separate pipeline.
type Indexer struct {
	embedder  embedding.Provider
	store     vectordb.Store
	log       logger.Logger
	batchSize int
	dryRun    bool
}

// NewIndexer creates a new bulk indexer
func NewIndexer(embedder embedding.Provider, store vectordb.Store, batchSize int, dryRun bool, log logger.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Indexer{
		embedder:  embedder,
		store:     store,
		log:       log,
		batchSize: batchSize,
		dryRun:    dryRun,
	}
}

// IndexIssues embeds and upserts issues in batches. A failed batch is
// counted in stats.Errors and indexing continues.
func (idx *Indexer) IndexIssues(ctx context.Context, issues []*models.Issue, stats *models.IndexStats) error {
	records := make([]models.EmbeddingRecord, len(issues))
	texts := make([]string, len(issues))
	for i, issue := range issues {
		records[i] = IssueRecord(issue)
		texts[i] = embedding.PrepareIssueText(issue.Title, issue.Body)
	}
	stats.TotalIssues += len(issues)
	return idx.index(ctx, records, texts, stats)
}

// IndexPullRequests embeds and upserts pull requests in batches
func (idx *Indexer) IndexPullRequests(ctx context.Context, prs []*models.PullRequest, stats *models.IndexStats) error {
	records := make([]models.EmbeddingRecord, len(prs))
	texts := make([]string, len(prs))
	for i, pr := range prs {
		records[i] = PullRequestRecord(pr)
		texts[i] = embedding.PrepareIssueText(pr.Title, pr.Body)
	}
	stats.TotalPRs += len(prs)
	return idx.index(ctx, records, texts, stats)
}

func (idx *Indexer) index(ctx context.Context, records []models.EmbeddingRecord, texts []string, stats *models.IndexStats) error {
	start := time.Now()

	for i := 0; i < len(records); i += idx.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + idx.batchSize
		if end > len(records) {
			end = len(records)
		}

		if err := idx.indexBatch(ctx, records[i:end], texts[i:end]); err != nil {
			idx.log.Warn("indexer", "Batch failed", map[string]interface{}{
				"from":  i,
				"to":    end,
				"error": err.Error(),
			})
			stats.Errors += end - i
			continue
		}
		stats.Indexed += end - i
	}

	stats.DurationMs += int(time.Since(start).Milliseconds())
	return nil
}

func (idx *Indexer) indexBatch(ctx context.Context, records []models.EmbeddingRecord, texts []string) error {
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(records))
	}

	if idx.dryRun {
		return nil
	}

	for i := range records {
		records[i].Vector = vectors[i]
	}
	if err := idx.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}
	return nil
}

// IssueRecord builds the issue pool record for an issue
func IssueRecord(issue *models.Issue) models.EmbeddingRecord {
	project := issue.FullRepo()
	return models.EmbeddingRecord{
		SourceID:    models.IssueSourceID(project, issue.Number),
		SourceKind:  models.SourceIssue,
		ProjectID:   project,
		TitleOrPath: issue.Title,
		Number:      issue.Number,
		State:       issue.State,
		URL:         issue.URL,
		Excerpt:     embedding.TruncateText(embedding.CleanText(issue.Body), excerptLen),
	}
}

// PullRequestRecord builds the PR pool record for a pull request
func PullRequestRecord(pr *models.PullRequest) models.EmbeddingRecord {
	project := pr.FullRepo()
	return models.EmbeddingRecord{
		SourceID:    models.PullRequestSourceID(project, pr.Number),
		SourceKind:  models.SourcePullRequest,
		ProjectID:   project,
		TitleOrPath: pr.Title,
		Number:      pr.Number,
		State:       pr.State,
		URL:         pr.URL,
		Excerpt:     embedding.TruncateText(embedding.CleanText(pr.Body), excerptLen),
	}
}
