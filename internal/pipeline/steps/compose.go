package steps

import (
	"fmt"

	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ResponseComposer fills the suggested replies of the analysis.
type ResponseComposer struct {
	composer Composer
}

// Composer defines the interface for reply drafting
type Composer interface {
	Compose(a *models.TriageAnalysis) []models.SuggestedResponse
}

// NewResponseComposer creates a new compose step
func NewResponseComposer(composer Composer) *ResponseComposer {
	return &ResponseComposer{composer: composer}
}

func (s *ResponseComposer) Name() string {
	return "compose"
}

func (s *ResponseComposer) Run(ctx *core.Context) error {
	if ctx.Analysis == nil {
		return fmt.Errorf("compose step needs an analysis")
	}

	ctx.Analysis.SuggestedResponses = s.composer.Compose(ctx.Analysis)
	if err := ctx.Analysis.Validate(); err != nil {
		return fmt.Errorf("invalid analysis: %w", err)
	}
	return nil
}
