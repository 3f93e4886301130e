package rules

import (
	"testing"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRulesConfig() *config.RulesConfig {
	return &config.RulesConfig{
		Enabled:         true,
		SpamPatterns:    []string{`buy (cheap|discount)`, `casino`},
		MinTitleLength:  8,
		TemplateMarkers: []string{"**Describe the bug**", "**To Reproduce**"},
		FlaggedLabels:   map[string]string{"invalid": "INVALID", "wontfix": "INVALID"},
		KnownDuplicates: map[int]int{55: 10},
		Custom: []config.RuleConfig{
			{
				Name:     "docs-question",
				Match:    config.MatchCondition{Labels: []string{"question"}, TitleContains: []string{"docs"}},
				Decision: "ANSWER_FROM_DOCS",
				Priority: 2,
			},
			{
				Name:       "release-blocker",
				Match:      config.MatchCondition{TitleRegex: `^\[release\]`},
				Decision:   "NEEDS_INVESTIGATION",
				Confidence: 0.9,
				Priority:   1,
			},
		},
	}
}

func TestEvaluate(t *testing.T) {
	eval, err := NewEvaluator(testRulesConfig())
	require.NoError(t, err)

	tests := []struct {
		name         string
		issue        models.Issue
		wantRule     string
		wantDecision models.Decision
	}{
		{
			name:         "spam in body",
			issue:        models.Issue{Number: 1, Title: "Great offer for everyone", Body: "Buy CHEAP watches"},
			wantRule:     "spam",
			wantDecision: models.DecisionInvalid,
		},
		{
			name:         "empty report",
			issue:        models.Issue{Number: 2, Title: "help", Body: "  "},
			wantRule:     "empty_report",
			wantDecision: models.DecisionNeedsInfo,
		},
		{
			name:         "untouched template",
			issue:        models.Issue{Number: 3, Title: "Something is off here", Body: "**Describe the bug**\n<!-- a clear description -->\n**To Reproduce**\n- \n"},
			wantRule:     "template_untouched",
			wantDecision: models.DecisionNeedsInfo,
		},
		{
			name:         "flagged label",
			issue:        models.Issue{Number: 4, Title: "Please add dark mode", Body: "would be nice", Labels: []string{"WontFix"}},
			wantRule:     "flagged_label",
			wantDecision: models.DecisionInvalid,
		},
		{
			name:         "known duplicate",
			issue:        models.Issue{Number: 55, Title: "Crash when saving file", Body: "stack trace attached"},
			wantRule:     "known_duplicate",
			wantDecision: models.DecisionCloseDuplicate,
		},
		{
			name:         "custom rule by regex wins on priority",
			issue:        models.Issue{Number: 6, Title: "[release] docs build fails", Body: "see CI", Labels: []string{"question"}},
			wantRule:     "custom:release-blocker",
			wantDecision: models.DecisionNeedsInvestigation,
		},
		{
			name:         "custom rule AND conditions",
			issue:        models.Issue{Number: 7, Title: "Where are the docs for plugins", Body: "?", Labels: []string{"question"}},
			wantRule:     "custom:docs-question",
			wantDecision: models.DecisionAnswerFromDocs,
		},
		{
			name:  "nothing fires",
			issue: models.Issue{Number: 8, Title: "Crash when uploading large files", Body: "Steps: upload a 2GB file and the server panics."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval.Evaluate(&tt.issue)
			if tt.wantRule == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantRule, got.Rule)
			assert.Equal(t, tt.wantDecision, got.Decision)
			assert.Greater(t, got.Confidence, 0.0)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestEvaluate_KnownDuplicateSetsOriginal(t *testing.T) {
	eval := New(KnownDuplicate{55: 10})

	got := eval.Evaluate(&models.Issue{Number: 55})
	require.NotNil(t, got)
	require.NotNil(t, got.DuplicateOf)
	assert.Equal(t, 10, *got.DuplicateOf)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestEvaluate_Deterministic(t *testing.T) {
	eval, err := NewEvaluator(testRulesConfig())
	require.NoError(t, err)

	issue := &models.Issue{Number: 9, Title: "bug", Labels: []string{"invalid", "wontfix"}}
	first := eval.Evaluate(issue)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, eval.Evaluate(issue))
	}
}

func TestNewEvaluator_Disabled(t *testing.T) {
	cfg := testRulesConfig()
	cfg.Enabled = false

	eval, err := NewEvaluator(cfg)
	require.NoError(t, err)
	assert.Empty(t, eval.Names())
	assert.Nil(t, eval.Evaluate(&models.Issue{Title: "casino"}))
}

func TestNewEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RulesConfig)
	}{
		{"bad spam regex", func(c *config.RulesConfig) { c.SpamPatterns = []string{"("} }},
		{"bad flagged decision", func(c *config.RulesConfig) { c.FlaggedLabels = map[string]string{"spam": "DELETE"} }},
		{"bad custom decision", func(c *config.RulesConfig) { c.Custom[0].Decision = "close_duplicate" }},
		{"bad custom regex", func(c *config.RulesConfig) { c.Custom[1].Match.TitleRegex = "[" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRulesConfig()
			tt.mutate(cfg)
			_, err := NewEvaluator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestCustom_Author(t *testing.T) {
	matchers, err := NewCustomMatchers([]config.RuleConfig{
		{Name: "bot", Match: config.MatchCondition{Author: "dependabot"}, Decision: "INVALID"},
	})
	require.NoError(t, err)
	eval := New(matchers...)

	tests := []struct {
		author    string
		wantMatch bool
	}{
		{"Dependabot", true},
		{"octocat", false},
	}
	for _, tt := range tests {
		got := eval.Evaluate(&models.Issue{Author: tt.author})
		if (got != nil) != tt.wantMatch {
			t.Errorf("Evaluate(author=%s) matched = %v, want %v", tt.author, got != nil, tt.wantMatch)
		}
	}
}

func TestTemplateUntouched_FilledIn(t *testing.T) {
	m := TemplateUntouched{Markers: []string{"**Describe the bug**"}}
	issue := &models.Issue{Body: "**Describe the bug**\nThe app crashes on save."}
	assert.Nil(t, m.Match(issue))
}
