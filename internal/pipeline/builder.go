package pipeline

import (
	"fmt"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/internal/pipeline/steps"
)

// Deps are the collaborators the steps are built from
type Deps struct {
	Rules       steps.RuleEvaluator
	Gatherer    steps.Gatherer
	Synthesizer steps.Synthesizer
	Composer    steps.Composer
	Indexer     steps.Interface
	Log         logger.Logger
}

// Builder constructs a pipeline of steps.
type Builder struct {
	cfg    *config.Config
	deps   Deps
	dryRun bool
}

// NewBuilder creates a new pipeline builder
func NewBuilder(cfg *config.Config, deps Deps, dryRun bool) *Builder {
	return &Builder{
		cfg:    cfg,
		deps:   deps,
		dryRun: dryRun,
	}
}

// DefaultSteps is the standard step order
var DefaultSteps = []string{"gatekeeper", "rules", "evidence", "synthesis", "compose", "indexer"}

// BuildDefault creates the standard pipeline
func (b *Builder) BuildDefault() *Pipeline {
	pipe := make([]core.Step, 0, len(DefaultSteps))
	for _, name := range DefaultSteps {
		step, _ := b.createStep(name)
		pipe = append(pipe, step)
	}
	return New(b.cfg, pipe)
}

// BuildFromConfig creates a pipeline based on the order defined in config.
// If config is empty, returns default.
func (b *Builder) BuildFromConfig() (*Pipeline, error) {
	if len(b.cfg.Pipeline.Steps) == 0 {
		return b.BuildDefault(), nil
	}

	var pipe []core.Step
	for _, name := range b.cfg.Pipeline.Steps {
		step, err := b.createStep(name)
		if err != nil {
			return nil, err
		}
		pipe = append(pipe, step)
	}
	return New(b.cfg, pipe), nil
}

func (b *Builder) createStep(name string) (core.Step, error) {
	switch name {
	case "gatekeeper":
		return steps.NewProjectGatekeeper(), nil
	case "rules":
		return steps.NewRuleCheck(b.deps.Rules), nil
	case "evidence":
		return steps.NewEvidenceGather(b.deps.Gatherer), nil
	case "synthesis":
		return steps.NewSynthesis(b.deps.Synthesizer), nil
	case "compose":
		return steps.NewResponseComposer(b.deps.Composer), nil
	case "indexer":
		return steps.NewIndexer(b.deps.Indexer, b.dryRun, b.deps.Log), nil
	default:
		return nil, fmt.Errorf("unknown step: %s", name)
	}
}
