package steps

import (
	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// RuleCheck runs the pattern rule tier.
type RuleCheck struct {
	evaluator RuleEvaluator
}

// RuleEvaluator defines the interface for the rule tier
type RuleEvaluator interface {
	Evaluate(issue *models.Issue) *rules.Decision
}

// NewRuleCheck creates a new rule step
func NewRuleCheck(evaluator RuleEvaluator) *RuleCheck {
	return &RuleCheck{evaluator: evaluator}
}

func (s *RuleCheck) Name() string {
	return "rules"
}

func (s *RuleCheck) Run(ctx *core.Context) error {
	if s.evaluator == nil {
		return nil
	}
	ctx.RuleDecision = s.evaluator.Evaluate(ctx.Issue)
	return nil
}
