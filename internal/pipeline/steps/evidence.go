package steps

import (
	"context"

	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// EvidenceGather retrieves similar issues, code, docs and pull requests.
type EvidenceGather struct {
	gatherer Gatherer
}

// Gatherer defines the interface for evidence retrieval
type Gatherer interface {
	Gather(ctx context.Context, issue *models.Issue, k int) *models.EvidenceBundle
}

// NewEvidenceGather creates a new evidence step
func NewEvidenceGather(gatherer Gatherer) *EvidenceGather {
	return &EvidenceGather{gatherer: gatherer}
}

func (s *EvidenceGather) Name() string {
	return "evidence"
}

func (s *EvidenceGather) Run(ctx *core.Context) error {
	// A rule decision does not need evidence
	if ctx.RuleDecision != nil || s.gatherer == nil {
		ctx.Evidence = &models.EvidenceBundle{}
		return nil
	}

	// Retrieval failures come back as a degraded bundle, never an error
	ctx.Evidence = s.gatherer.Gather(ctx.Ctx, ctx.Issue, ctx.Config.Triage.EvidenceK)
	return nil
}
