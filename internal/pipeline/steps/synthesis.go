package steps

import (
	"context"
	"errors"

	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Synthesis turns the rule result and evidence into a decision.
type Synthesis struct {
	synthesizer Synthesizer
}

// Synthesizer defines the interface for the decision synthesizer
type Synthesizer interface {
	Synthesize(ctx context.Context, issue *models.Issue, bundle *models.EvidenceBundle, ruleDecision *rules.Decision) (*models.TriageAnalysis, error)
}

// NewSynthesis creates a new synthesis step
func NewSynthesis(synthesizer Synthesizer) *Synthesis {
	return &Synthesis{synthesizer: synthesizer}
}

func (s *Synthesis) Name() string {
	return "synthesis"
}

func (s *Synthesis) Run(ctx *core.Context) error {
	if s.synthesizer == nil {
		return errors.New("no synthesizer configured")
	}

	a, err := s.synthesizer.Synthesize(ctx.Ctx, ctx.Issue, ctx.Evidence, ctx.RuleDecision)
	if err != nil {
		return err
	}
	ctx.Analysis = a
	return nil
}
