// Package pipeline runs an issue through the ordered analysis steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ErrSkipped is returned when a step stopped the pipeline on purpose
var ErrSkipped = errors.New("analysis skipped")

// Pipeline is an ordered list of steps
type Pipeline struct {
	cfg   *config.Config
	steps []core.Step
}

// New creates a pipeline from steps
func New(cfg *config.Config, steps []core.Step) *Pipeline {
	return &Pipeline{cfg: cfg, steps: steps}
}

// StepNames lists the step names in execution order
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run processes a single issue through the configured pipeline and
// returns the final context
func (p *Pipeline) Run(ctx context.Context, issue *models.Issue) (*core.Context, error) {
	pCtx := &core.Context{
		Ctx:    ctx,
		Issue:  issue,
		Config: p.cfg,
	}

	for _, step := range p.steps {
		if err := step.Run(pCtx); err != nil {
			if errors.Is(err, core.ErrSkipPipeline) {
				return pCtx, fmt.Errorf("%w: %s", ErrSkipped, pCtx.SkipReason)
			}
			return pCtx, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}
	}

	if pCtx.Analysis == nil {
		return pCtx, fmt.Errorf("pipeline %v produced no analysis", p.StepNames())
	}
	return pCtx, nil
}

// Analyze runs the pipeline and returns only the analysis
func (p *Pipeline) Analyze(ctx context.Context, issue *models.Issue) (*models.TriageAnalysis, error) {
	pCtx, err := p.Run(ctx, issue)
	if err != nil {
		return nil, err
	}
	return pCtx.Analysis, nil
}
