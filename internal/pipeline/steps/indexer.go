package steps

import (
	"context"

	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Indexer adds the analyzed issue to the issue pool so later issues can
// find it.
type Indexer struct {
	client Interface
	dryRun bool
	log    logger.Logger
}

// Interface defines the subset of evidence.Indexer this step needs
type Interface interface {
	IndexIssues(ctx context.Context, issues []*models.Issue, stats *models.IndexStats) error
}

// NewIndexer creates a new indexer step
func NewIndexer(client Interface, dryRun bool, log logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Indexer{
		client: client,
		dryRun: dryRun,
		log:    log,
	}
}

func (s *Indexer) Name() string {
	return "indexer"
}

func (s *Indexer) Run(ctx *core.Context) error {
	if s.client == nil || s.dryRun {
		return nil
	}
	if ctx.Analysis != nil {
		switch ctx.Analysis.Decision {
		case models.DecisionCloseDuplicate, models.DecisionInvalid:
			s.log.Debug("indexer", "Skipping indexing of issue to be closed", map[string]interface{}{
				"issue":    ctx.Issue.Number,
				"decision": string(ctx.Analysis.Decision),
			})
			return nil
		}
	}

	var stats models.IndexStats
	if err := s.client.IndexIssues(ctx.Ctx, []*models.Issue{ctx.Issue}, &stats); err != nil {
		// The analysis stands even when the pool write fails
		s.log.Warn("indexer", "Failed to index issue", map[string]interface{}{
			"issue": ctx.Issue.Number,
			"error": err.Error(),
		})
		return nil
	}
	ctx.Indexed = stats.Indexed > 0
	return nil
}
