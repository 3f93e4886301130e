// Package triage turns an issue, its rule result and its evidence into a
// TriageAnalysis, calling the reasoning provider only when no rule tier
// can decide.
package triage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Kavirubc/gh-triage/internal/compose"
	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// docLinkFloor is the lowest similarity a doc chunk needs to be linked
const docLinkFloor = 0.5

// Synthesizer produces decisions
type Synthesizer struct {
	cfg        *config.Config
	llm        llm.Provider
	accountant *cost.Accountant
	composer   *compose.Composer
	keywords   *keywords
	log        logger.Logger
	now        func() time.Time
}

// NewSynthesizer creates a new decision synthesizer. A nil composer leaves
// suggested responses empty for a later step to fill.
func NewSynthesizer(cfg *config.Config, provider llm.Provider, accountant *cost.Accountant, composer *compose.Composer, log logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Synthesizer{
		cfg:        cfg,
		llm:        provider,
		accountant: accountant,
		composer:   composer,
		keywords:   newKeywords(&cfg.Triage.Keywords),
		log:        log,
		now:        time.Now,
	}
}

// Synthesize decides an issue. Tiers are tried in order: the pattern rule
// decision, the evidence rules, then the reasoning provider. Only the last
// one costs anything.
func (s *Synthesizer) Synthesize(ctx context.Context, issue *models.Issue, bundle *models.EvidenceBundle, ruleDecision *rules.Decision) (*models.TriageAnalysis, error) {
	if bundle == nil {
		bundle = &models.EvidenceBundle{}
	}

	a := s.newAnalysis(issue, bundle)

	switch ev := s.checkEvidence(issue, bundle); {
	case ruleDecision != nil:
		a.Decision = ruleDecision.Decision
		a.Confidence = ruleDecision.Confidence
		a.PrimaryMessage = ruleDecision.Message
		a.RuleMatched = models.StringPtr(ruleDecision.Rule)
		if ruleDecision.Decision == models.DecisionCloseDuplicate && ruleDecision.DuplicateOf != nil {
			a.DuplicateOf = models.IntPtr(*ruleDecision.DuplicateOf)
		}

	case ev != nil:
		a.Decision = ev.decision
		a.Confidence = ev.confidence
		a.PrimaryMessage = ev.message
		a.EvidenceBullets = ev.bullets
		a.DuplicateOf = ev.duplicateOf
		a.RuleMatched = models.StringPtr(ev.rule)

	default:
		if err := s.reason(ctx, issue, bundle, a); err != nil {
			return nil, err
		}
	}

	a.Priority = s.keywords.categorize(issue, a.Decision)
	a.PriorityScore = priorityScore(s.cfg.Triage.PriorityScores, a.Priority)
	if s.composer != nil {
		a.SuggestedResponses = s.composer.Compose(a)
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	s.log.Info("triage", "Issue decided", map[string]interface{}{
		"project":    a.ProjectID,
		"issue":      a.IssueNumber,
		"decision":   string(a.Decision),
		"confidence": a.Confidence,
		"rule":       ruleName(a),
		"cost":       a.Cost.TotalCost,
		"degraded":   a.Degraded,
	})
	return a, nil
}

// reason calls the provider and fills the decision fields of a
func (s *Synthesizer) reason(ctx context.Context, issue *models.Issue, bundle *models.EvidenceBundle, a *models.TriageAnalysis) error {
	if s.llm == nil {
		return fmt.Errorf("%w: no reasoning provider configured", ErrSynthesisFailed)
	}

	resp, err := s.llm.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(issue, bundle),
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: s.cfg.LLM.Temperature,
		JSON:        true,
	})
	if err != nil {
		s.log.Error("triage", "Reasoning provider call failed", map[string]interface{}{
			"project": a.ProjectID,
			"issue":   a.IssueNumber,
			"error":   err,
		})
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	pd, decision, err := parseDecision(resp.Text)
	if err != nil {
		if errors.Is(err, models.ErrOutOfTaxonomy) {
			// Prompt or schema drift, not a transport problem
			s.log.Error("triage", "Provider returned a decision outside the taxonomy", map[string]interface{}{
				"project":  a.ProjectID,
				"issue":    a.IssueNumber,
				"model":    resp.Model,
				"response": truncate(resp.Text, 200),
				"error":    err,
			})
		} else {
			s.log.Warn("triage", "Malformed provider response", map[string]interface{}{
				"project": a.ProjectID,
				"issue":   a.IssueNumber,
				"error":   err.Error(),
			})
		}
		return err
	}

	a.Decision = decision
	a.Confidence = pd.Confidence
	a.PrimaryMessage = strings.TrimSpace(pd.PrimaryMessage)
	if pd.EvidenceBullets != nil {
		a.EvidenceBullets = pd.EvidenceBullets
	}
	a.Model = resp.Model
	a.Cost = s.accountant.Compute(resp.Usage)

	if decision == models.DecisionCloseDuplicate {
		a.DuplicateOf = pd.DuplicateOf
		if a.DuplicateOf == nil {
			if top, ok := bundle.TopIssue(); ok {
				a.DuplicateOf = models.IntPtr(top.Number)
			}
		}
	}

	a.RelatedPRs = mergePRs(a.RelatedPRs, knownPRs(pd.RelatedPRs, bundle))
	return nil
}

// newAnalysis fills everything that does not depend on the decision
func (s *Synthesizer) newAnalysis(issue *models.Issue, bundle *models.EvidenceBundle) *models.TriageAnalysis {
	return &models.TriageAnalysis{
		SchemaVersion:      models.SchemaVersion,
		ID:                 uuid.NewString(),
		ProjectID:          issue.FullRepo(),
		IssueNumber:        issue.Number,
		EvidenceBullets:    []string{},
		RelatedPRs:         s.relatedPRs(bundle),
		DocLinks:           s.docLinks(bundle),
		SuggestedResponses: []models.SuggestedResponse{},
		Degraded:           bundle.Degraded,
		CreatedAt:          s.now().UTC(),
	}
}

// relatedPRs keeps PR candidates above the related threshold
func (s *Synthesizer) relatedPRs(bundle *models.EvidenceBundle) []int {
	prs := []int{}
	for _, c := range bundle.SimilarPRs {
		if c.Similarity >= s.cfg.Triage.RelatedPRThreshold && c.Number > 0 {
			prs = append(prs, c.Number)
		}
	}
	return prs
}

// docLinks collects doc chunks, and code chunks whose path looks like
// documentation, best first
func (s *Synthesizer) docLinks(bundle *models.EvidenceBundle) []models.DocLink {
	links := []models.DocLink{}
	seen := make(map[string]bool)

	add := func(c models.EvidenceCandidate) {
		if c.Similarity < docLinkFloor || c.TitleOrPath == "" {
			return
		}
		key := fmt.Sprintf("%s:%d", c.TitleOrPath, c.Line)
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, models.DocLink{File: c.TitleOrPath, Line: c.Line, Similarity: c.Similarity})
	}

	for _, c := range bundle.SimilarDocs {
		add(c)
	}
	for _, c := range bundle.SimilarCode {
		if s.isDocPath(c.TitleOrPath) {
			add(c)
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Similarity > links[j].Similarity
	})
	if len(links) > 3 {
		links = links[:3]
	}
	return links
}

func (s *Synthesizer) isDocPath(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range s.cfg.Triage.DocPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// knownPRs drops PR numbers the provider invented
func knownPRs(claimed []int, bundle *models.EvidenceBundle) []int {
	known := make(map[int]bool, len(bundle.SimilarPRs))
	for _, c := range bundle.SimilarPRs {
		known[c.Number] = true
	}
	var out []int
	for _, n := range claimed {
		if known[n] {
			out = append(out, n)
		}
	}
	return out
}

func mergePRs(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func ruleName(a *models.TriageAnalysis) string {
	if a.RuleMatched == nil {
		return ""
	}
	return *a.RuleMatched
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
