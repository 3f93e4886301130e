package triage

import (
	"regexp"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// keywordSet matches whole words or phrases, case-insensitively
type keywordSet []*regexp.Regexp

func newKeywordSet(words []string) keywordSet {
	set := make(keywordSet, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		set = append(set, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return set
}

func (k keywordSet) matches(text string) bool {
	for _, re := range k {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// keywords categorises issue text for priority scoring and the evidence tier
type keywords struct {
	critical       keywordSet
	criticalLabels []string
	bug            keywordSet
	feature        keywordSet
	question       keywordSet
}

func newKeywords(cfg *config.KeywordsConfig) *keywords {
	return &keywords{
		critical:       newKeywordSet(cfg.Critical),
		criticalLabels: cfg.CriticalLabels,
		bug:            newKeywordSet(cfg.Bug),
		feature:        newKeywordSet(cfg.Feature),
		question:       newKeywordSet(cfg.Question),
	}
}

func issueText(issue *models.Issue) string {
	return issue.Title + "\n" + issue.Body
}

func (k *keywords) isCritical(issue *models.Issue) bool {
	for _, l := range k.criticalLabels {
		if issue.HasLabel(l) {
			return true
		}
	}
	return k.critical.matches(issueText(issue))
}

func (k *keywords) isFeatureRequest(issue *models.Issue) bool {
	return issue.HasLabel("enhancement") || issue.HasLabel("feature") || k.feature.matches(issueText(issue))
}

func (k *keywords) isQuestion(issue *models.Issue) bool {
	return issue.HasLabel("question") || strings.HasSuffix(strings.TrimSpace(issue.Title), "?") ||
		k.question.matches(issueText(issue))
}

// categorize maps a decision and the issue wording to an urgency bucket
func (k *keywords) categorize(issue *models.Issue, decision models.Decision) models.PriorityCategory {
	switch decision {
	case models.DecisionInvalid, models.DecisionCloseDuplicate, models.DecisionCloseFixed, models.DecisionCloseExists:
		return models.PriorityLow
	case models.DecisionValidFeature:
		return models.PriorityFeature
	case models.DecisionAnswerFromDocs:
		return models.PriorityQuestion
	}

	// NEEDS_INVESTIGATION and NEEDS_INFO
	if k.isCritical(issue) {
		return models.PriorityCritical
	}
	if decision == models.DecisionNeedsInvestigation || k.bug.matches(issueText(issue)) {
		return models.PriorityBug
	}
	if k.isQuestion(issue) {
		return models.PriorityQuestion
	}
	return models.PriorityLow
}

// priorityScore looks the category up in the configured table
func priorityScore(scores map[string]int, category models.PriorityCategory) int {
	if score, ok := scores[string(category)]; ok {
		return score
	}
	return config.DefaultPriorityScores()[string(category)]
}
