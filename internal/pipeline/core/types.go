package core

import (
	"context"
	"errors"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ErrSkipPipeline indicates that the rest of the pipeline should be skipped purely for logic reasons
// (e.g. project disabled). It is not an error condition.
var ErrSkipPipeline = errors.New("skip pipeline")

// Context carries state through the pipeline steps.
type Context struct {
	// Base Inputs
	Ctx    context.Context
	Issue  *models.Issue
	Config *config.Config

	// RuleDecision is set when a pattern rule fired
	RuleDecision *rules.Decision

	// Evidence holds the retrieval results, possibly degraded
	Evidence *models.EvidenceBundle

	// Analysis is the synthesized decision
	Analysis *models.TriageAnalysis

	// Indexed is set once the issue was written to the issue pool
	Indexed bool

	// SkipReason is set when ErrSkipPipeline is returned to explain why
	SkipReason string
}

// Step defines a single unit of work in the pipeline.
type Step interface {
	// Name returns the unique identifier for this step (used in config/logs)
	Name() string
	// Run executes the step logic.
	// Returning ErrSkipPipeline gracefully stops execution.
	// Returning any other error halts execution and is treated as a failure.
	Run(ctx *Context) error
}
