// Package rules implements the pattern rule tier: cheap, deterministic
// matchers that decide an issue without any external call.
package rules

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Decision is the outcome of a matcher that fired
type Decision struct {
	Rule        string
	Decision    models.Decision
	Confidence  float64
	Message     string
	DuplicateOf *int
}

// Matcher is one pattern rule. Match returns nil when it does not fire.
type Matcher interface {
	Name() string
	Match(issue *models.Issue) *Decision
}

// Evaluator runs matchers in order; the first match wins
type Evaluator struct {
	matchers []Matcher
}

// New creates an evaluator over the given matchers, in priority order
func New(matchers ...Matcher) *Evaluator {
	return &Evaluator{matchers: matchers}
}

// NewEvaluator builds the configured matchers. User rules run before the
// built-ins, ordered by their priority field.
func NewEvaluator(cfg *config.RulesConfig) (*Evaluator, error) {
	if !cfg.Enabled {
		return New(), nil
	}

	var matchers []Matcher

	custom, err := NewCustomMatchers(cfg.Custom)
	if err != nil {
		return nil, err
	}
	matchers = append(matchers, custom...)

	if len(cfg.KnownDuplicates) > 0 {
		matchers = append(matchers, KnownDuplicate(cfg.KnownDuplicates))
	}
	if len(cfg.FlaggedLabels) > 0 {
		flagged, err := NewFlaggedLabel(cfg.FlaggedLabels)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, flagged)
	}
	if len(cfg.SpamPatterns) > 0 {
		spam, err := NewSpam(cfg.SpamPatterns)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, spam)
	}
	if cfg.MinTitleLength > 0 {
		matchers = append(matchers, EmptyReport{MinTitleLength: cfg.MinTitleLength})
	}
	if len(cfg.TemplateMarkers) > 0 {
		matchers = append(matchers, TemplateUntouched{Markers: cfg.TemplateMarkers})
	}

	return New(matchers...), nil
}

// Evaluate returns the first firing matcher's decision, or nil
func (e *Evaluator) Evaluate(issue *models.Issue) *Decision {
	for _, m := range e.matchers {
		if d := m.Match(issue); d != nil {
			if d.Rule == "" {
				d.Rule = m.Name()
			}
			if d.Confidence == 0 {
				d.Confidence = 1.0
			}
			return d
		}
	}
	return nil
}

// Names lists the matchers in evaluation order
func (e *Evaluator) Names() []string {
	names := make([]string, len(e.matchers))
	for i, m := range e.matchers {
		names[i] = m.Name()
	}
	return names
}

// NewCustomMatchers compiles user rules sorted by priority (lower first)
func NewCustomMatchers(rules []config.RuleConfig) ([]Matcher, error) {
	sorted := make([]config.RuleConfig, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	matchers := make([]Matcher, 0, len(sorted))
	for _, r := range sorted {
		decision, err := models.ParseDecision(r.Decision)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}

		var titleRe *regexp.Regexp
		if r.Match.TitleRegex != "" {
			titleRe, err = regexp.Compile(r.Match.TitleRegex)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid title_regex: %w", r.Name, err)
			}
		}

		matchers = append(matchers, &Custom{
			rule:     r,
			decision: decision,
			titleRe:  titleRe,
		})
	}
	return matchers, nil
}
