package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kavirubc/gh-triage/internal/compose"
	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/internal/testutil"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

func newSynthesizer(cfg *config.Config, provider llm.Provider) *Synthesizer {
	if cfg == nil {
		cfg = config.Default()
	}
	return NewSynthesizer(cfg, provider, cost.NewAccountant(cfg.Cost), compose.New(compose.DefaultSignature), nil)
}

func testIssue(number int, title, body string) *models.Issue {
	return &models.Issue{Org: "acme", Repo: "widgets", Number: number, Title: title, Body: body, State: "open"}
}

func TestSynthesize_EvidenceDuplicate(t *testing.T) {
	provider := &testutil.LLM{Text: `{"decision":"VALID_FEATURE","confidence":0.9}`}
	s := newSynthesizer(nil, provider)

	bundle := &models.EvidenceBundle{
		SimilarIssues: []models.EvidenceCandidate{
			{SourceKind: models.SourceIssue, Number: 12, TitleOrPath: "Login broken", State: "closed", Similarity: 0.92},
		},
	}

	a, err := s.Synthesize(context.Background(), testIssue(42, "Login does not work", "Cannot log in"), bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionCloseDuplicate, a.Decision)
	require.NotNil(t, a.DuplicateOf)
	assert.Equal(t, 12, *a.DuplicateOf)
	require.NotNil(t, a.RuleMatched)
	assert.Equal(t, RuleEvidenceDuplicate, *a.RuleMatched)
	assert.True(t, a.Cost.IsZero())
	assert.InDelta(t, 0.92, a.Confidence, 1e-9)
	assert.Equal(t, 0, provider.Calls())
	assert.NotEmpty(t, a.SuggestedResponses)
	assert.Equal(t, "close_duplicate", a.SuggestedResponses[0].Type)
	assert.Equal(t, "acme/widgets", a.ProjectID)
	assert.Equal(t, models.SchemaVersion, a.SchemaVersion)
	assert.NotEmpty(t, a.ID)
}

func TestSynthesize_OpenDuplicateGoesToProvider(t *testing.T) {
	provider := &testutil.LLM{
		Text:  `{"decision":"NEEDS_INVESTIGATION","confidence":0.7,"primary_message":"Real bug","evidence_bullets":["Crash on save"]}`,
		Usage: &llm.Usage{InputTokens: 1000, OutputTokens: 200},
	}
	s := newSynthesizer(nil, provider)

	bundle := &models.EvidenceBundle{
		SimilarIssues: []models.EvidenceCandidate{
			{SourceKind: models.SourceIssue, Number: 12, State: "open", Similarity: 0.95},
		},
	}

	a, err := s.Synthesize(context.Background(), testIssue(43, "Save fails", "error on save"), bundle, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNeedsInvestigation, a.Decision)
	assert.Nil(t, a.RuleMatched)
	assert.Nil(t, a.DuplicateOf)
	assert.Equal(t, 1, provider.Calls())
}

func TestSynthesize_Provider(t *testing.T) {
	provider := &testutil.LLM{
		Text:  "```json\n{\"decision\":\"VALID_FEATURE\",\"confidence\":0.8,\"primary_message\":\"Reasonable request\",\"evidence_bullets\":[\"No existing option\",\" \"],\"related_prs\":[7,99]}\n```",
		Usage: &llm.Usage{InputTokens: 1000, OutputTokens: 200},
	}
	s := newSynthesizer(nil, provider)

	bundle := &models.EvidenceBundle{
		SimilarPRs: []models.EvidenceCandidate{
			{SourceKind: models.SourcePullRequest, Number: 7, State: "open", Similarity: 0.6},
		},
	}

	a, err := s.Synthesize(context.Background(), testIssue(77, "Add dark mode", "Please add a dark theme"), bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionValidFeature, a.Decision)
	assert.Nil(t, a.RuleMatched)
	assert.Greater(t, a.Cost.TotalCost, 0.0)
	assert.Equal(t, 1000, a.Cost.InputTokens)
	assert.Equal(t, 200, a.Cost.OutputTokens)
	assert.Equal(t, "fake-model", a.Model)
	assert.Equal(t, []string{"No existing option"}, a.EvidenceBullets)
	// 99 is not in the evidence
	assert.Equal(t, []int{7}, a.RelatedPRs)
	assert.Equal(t, models.PriorityFeature, a.Priority)
	assert.Equal(t, 45, a.PriorityScore)
	assert.Equal(t, 1, provider.Calls())
}

func TestSynthesize_RuleDecision(t *testing.T) {
	provider := &testutil.LLM{Text: `{}`}
	s := newSynthesizer(nil, provider)

	rd := &rules.Decision{Rule: "spam", Decision: models.DecisionInvalid, Confidence: 1.0, Message: "Looks like spam"}
	a, err := s.Synthesize(context.Background(), testIssue(9, "buy cheap pills", ""), &models.EvidenceBundle{}, rd)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionInvalid, a.Decision)
	assert.Equal(t, 1.0, a.Confidence)
	require.NotNil(t, a.RuleMatched)
	assert.Equal(t, "spam", *a.RuleMatched)
	assert.True(t, a.Cost.IsZero())
	assert.Empty(t, a.SuggestedResponses)
	assert.NotNil(t, a.SuggestedResponses)
	assert.Equal(t, models.PriorityLow, a.Priority)
	assert.Equal(t, 0, provider.Calls())
}

func TestSynthesize_Degraded(t *testing.T) {
	provider := &testutil.LLM{
		Text:  `{"decision":"NEEDS_INFO","confidence":0.6,"primary_message":"Need steps"}`,
		Usage: &llm.Usage{InputTokens: 500, OutputTokens: 100},
	}
	s := newSynthesizer(nil, provider)

	bundle := &models.EvidenceBundle{Degraded: true, DegradedReason: "retrieval degraded: connection refused"}
	a, err := s.Synthesize(context.Background(), testIssue(5, "It broke", "help"), bundle, nil)
	require.NoError(t, err)

	assert.True(t, a.Degraded)
	assert.Equal(t, models.DecisionNeedsInfo, a.Decision)
	assert.Empty(t, a.RelatedPRs)
	assert.Empty(t, a.DocLinks)
}

func TestSynthesize_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *testutil.LLM
		wantErr  error
	}{
		{"out of taxonomy", &testutil.LLM{Text: `{"decision":"WONTFIX","confidence":0.9}`}, models.ErrOutOfTaxonomy},
		{"malformed", &testutil.LLM{Text: "I think this is a duplicate"}, ErrSynthesisFailed},
		{"provider error", &testutil.LLM{Err: testutil.ErrUnavailable}, ErrSynthesisFailed},
		{"timeout", &testutil.LLM{Err: context.DeadlineExceeded}, ErrSynthesisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSynthesizer(nil, tt.provider)
			a, err := s.Synthesize(context.Background(), testIssue(1, "Something", "body"), &models.EvidenceBundle{}, nil)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSynthesize_ProviderTimeout(t *testing.T) {
	cfg := config.Default()
	provider := llm.NewRetryingProvider(&testutil.LLM{Delay: time.Second, Text: `{}`}, llm.RetryConfig{
		MaxRetries: 0,
		Timeout:    20 * time.Millisecond,
	})
	s := newSynthesizer(cfg, provider)

	_, err := s.Synthesize(context.Background(), testIssue(1, "Slow", "body"), &models.EvidenceBundle{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSynthesize_EvidenceRules(t *testing.T) {
	cfg := config.Default()
	cfg.Triage.EvidenceRules = true

	tests := []struct {
		name     string
		issue    *models.Issue
		bundle   *models.EvidenceBundle
		wantRule string
		wantDec  models.Decision
	}{
		{
			name:  "question answered by docs",
			issue: testIssue(2, "How do I configure the proxy?", ""),
			bundle: &models.EvidenceBundle{SimilarDocs: []models.EvidenceCandidate{
				{SourceKind: models.SourceDocChunk, TitleOrPath: "docs/proxy.md", Similarity: 0.88},
			}},
			wantRule: RuleFoundInDocs,
			wantDec:  models.DecisionAnswerFromDocs,
		},
		{
			name:  "feature already in code",
			issue: testIssue(3, "Add CSV export", "would be nice to export"),
			bundle: &models.EvidenceBundle{SimilarCode: []models.EvidenceCandidate{
				{SourceKind: models.SourceCodeChunk, TitleOrPath: "export/csv.go", Line: 12, Similarity: 0.9},
			}},
			wantRule: RuleExistsInCode,
			wantDec:  models.DecisionCloseExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &testutil.LLM{Text: `{}`}
			s := newSynthesizer(cfg, provider)

			a, err := s.Synthesize(context.Background(), tt.issue, tt.bundle, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDec, a.Decision)
			require.NotNil(t, a.RuleMatched)
			assert.Equal(t, tt.wantRule, *a.RuleMatched)
			assert.True(t, a.Cost.IsZero())
			assert.Equal(t, 0, provider.Calls())
		})
	}
}

func TestSynthesize_EvidenceRulesDisabled(t *testing.T) {
	provider := &testutil.LLM{Text: `{"decision":"ANSWER_FROM_DOCS","confidence":0.7}`}
	s := newSynthesizer(nil, provider)

	bundle := &models.EvidenceBundle{SimilarDocs: []models.EvidenceCandidate{
		{SourceKind: models.SourceDocChunk, TitleOrPath: "docs/proxy.md", Similarity: 0.95},
	}}
	a, err := s.Synthesize(context.Background(), testIssue(2, "How do I configure the proxy?", ""), bundle, nil)
	require.NoError(t, err)
	assert.Nil(t, a.RuleMatched)
	assert.Equal(t, 1, provider.Calls())
	require.Len(t, a.DocLinks, 1)
	assert.Equal(t, "docs/proxy.md", a.DocLinks[0].File)
}

func TestSynthesize_ProjectThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Projects = []config.ProjectConfig{{Org: "acme", Repo: "widgets", Enabled: true, DuplicateThreshold: 0.95}}

	provider := &testutil.LLM{Text: `{"decision":"NEEDS_INVESTIGATION","confidence":0.5}`}
	s := newSynthesizer(cfg, provider)

	bundle := &models.EvidenceBundle{SimilarIssues: []models.EvidenceCandidate{
		{SourceKind: models.SourceIssue, Number: 12, State: "closed", Similarity: 0.9},
	}}
	a, err := s.Synthesize(context.Background(), testIssue(4, "Crash", ""), bundle, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNeedsInvestigation, a.Decision)
	assert.Equal(t, 1, provider.Calls())
}

func TestCategorize(t *testing.T) {
	k := newKeywords(&config.Default().Triage.Keywords)

	tests := []struct {
		name     string
		issue    *models.Issue
		decision models.Decision
		want     models.PriorityCategory
	}{
		{"security bug", testIssue(1, "Security vulnerability in auth", ""), models.DecisionNeedsInvestigation, models.PriorityCritical},
		{"critical label", &models.Issue{Title: "Thing", Labels: []string{"P0"}}, models.DecisionNeedsInfo, models.PriorityCritical},
		{"plain bug", testIssue(1, "Button misaligned", ""), models.DecisionNeedsInvestigation, models.PriorityBug},
		{"feature", testIssue(1, "Dark mode", ""), models.DecisionValidFeature, models.PriorityFeature},
		{"duplicate", testIssue(1, "Crash on start", ""), models.DecisionCloseDuplicate, models.PriorityLow},
		{"question needing info", testIssue(1, "Is it possible to run offline?", ""), models.DecisionNeedsInfo, models.PriorityQuestion},
		{"vague", testIssue(1, "Thoughts", ""), models.DecisionNeedsInfo, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, k.categorize(tt.issue, tt.decision))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	issue := testIssue(77, "Add dark mode", strings.Repeat("x", 2000))
	issue.Labels = []string{"enhancement"}

	bundle := &models.EvidenceBundle{
		SimilarIssues: []models.EvidenceCandidate{
			{Number: 1, TitleOrPath: "one", Similarity: 0.9, State: "open"},
			{Number: 2, TitleOrPath: "two", Similarity: 0.8, State: "open"},
			{Number: 3, TitleOrPath: "three", Similarity: 0.7, State: "open"},
			{Number: 4, TitleOrPath: "four", Similarity: 0.6, State: "open"},
		},
		SimilarDocs: []models.EvidenceCandidate{{TitleOrPath: "docs/theme.md", Line: 4, Similarity: 0.5}},
	}

	prompt := buildPrompt(issue, bundle)
	assert.Contains(t, prompt, `Issue #77: "Add dark mode"`)
	assert.Contains(t, prompt, "Labels: enhancement")
	assert.Contains(t, prompt, "#3: three")
	assert.NotContains(t, prompt, "#4: four")
	assert.Contains(t, prompt, "docs/theme.md:4 (50% match)")
	assert.Less(t, strings.Count(prompt, "x"), 600)

	bundle.Degraded = true
	assert.Contains(t, buildPrompt(issue, bundle), "search was unavailable")
}

func TestSystemPromptListsTaxonomy(t *testing.T) {
	for _, d := range models.Decisions {
		assert.Contains(t, systemPrompt, string(d))
	}
}

func TestParseDecision(t *testing.T) {
	pd, d, err := parseDecision(`{"decision":"NEEDS_INFO","confidence":1.7,"duplicate_of":3}`)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNeedsInfo, d)
	assert.Equal(t, 1.0, pd.Confidence)
	assert.Nil(t, pd.DuplicateOf)

	_, _, err = parseDecision(`{"decision":"needs_info"}`)
	assert.ErrorIs(t, err, models.ErrOutOfTaxonomy)
	assert.False(t, errors.Is(err, ErrSynthesisFailed))
}
