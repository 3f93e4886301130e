package triage

import (
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/embedding"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

const (
	promptBodyLen        = 500
	promptCandidatesEach = 3
)

// systemPrompt is identical for every call so providers can cache it
var systemPrompt = fmt.Sprintf(`You are a GitHub issue triage assistant. Your job is to make ONE CLEAR DECISION about an issue.

Allowed decisions (use the value exactly as written):
%s

Return only a JSON object with this structure:
{
  "decision": "one of the allowed decisions",
  "confidence": 0.0-1.0,
  "primary_message": "One sentence explanation",
  "evidence_bullets": ["2-3 short evidence points"],
  "duplicate_of": issue number or null (only for CLOSE_DUPLICATE),
  "related_prs": [PR numbers from the evidence that relate to this issue]
}

Only reference issue and PR numbers that appear in the evidence. Be decisive.`, taxonomyList())

func taxonomyList() string {
	descriptions := map[models.Decision]string{
		models.DecisionCloseDuplicate:     "same as an existing issue",
		models.DecisionCloseFixed:         "already fixed in a recent version or merged PR",
		models.DecisionCloseExists:        "the requested feature already exists",
		models.DecisionNeedsInvestigation: "a real bug that needs work",
		models.DecisionValidFeature:       "a reasonable feature request for the roadmap",
		models.DecisionNeedsInfo:          "missing reproduction steps or details",
		models.DecisionAnswerFromDocs:     "a question answered by the documentation",
		models.DecisionInvalid:            "spam or not actionable",
	}

	var sb strings.Builder
	for _, d := range models.Decisions {
		fmt.Fprintf(&sb, "- %s: %s\n", d, descriptions[d])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// buildPrompt renders the issue and the top ranked candidates of each pool
func buildPrompt(issue *models.Issue, bundle *models.EvidenceBundle) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Issue #%d: %q\n", issue.Number, issue.Title)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	sb.WriteString("\n")
	body := strings.TrimSpace(issue.Body)
	if body == "" {
		body = "(no description)"
	}
	sb.WriteString(embedding.TruncateText(body, promptBodyLen))
	sb.WriteString("\n\nEvidence:\n")

	if bundle == nil {
		bundle = &models.EvidenceBundle{}
	}
	if bundle.Degraded {
		sb.WriteString("(search was unavailable; decide from the issue text alone)\n")
	}

	writeCandidates(&sb, "Similar issues", bundle.SimilarIssues, func(c models.EvidenceCandidate) string {
		return fmt.Sprintf("#%d: %s (%d%% match, %s)", c.Number, c.TitleOrPath, percent(c.Similarity), c.State)
	})
	writeCandidates(&sb, "Related PRs", bundle.SimilarPRs, func(c models.EvidenceCandidate) string {
		return fmt.Sprintf("PR #%d: %s (%d%% match, %s)", c.Number, c.TitleOrPath, percent(c.Similarity), c.State)
	})
	writeCandidates(&sb, "Code", bundle.SimilarCode, func(c models.EvidenceCandidate) string {
		return fmt.Sprintf("%s (%d%% match)", location(c), percent(c.Similarity))
	})
	writeCandidates(&sb, "Documentation", bundle.SimilarDocs, func(c models.EvidenceCandidate) string {
		return fmt.Sprintf("%s (%d%% match)", location(c), percent(c.Similarity))
	})

	sb.WriteString("\nDecide what to do.")
	return sb.String()
}

func writeCandidates(sb *strings.Builder, heading string, candidates []models.EvidenceCandidate, format func(models.EvidenceCandidate) string) {
	if len(candidates) > promptCandidatesEach {
		candidates = candidates[:promptCandidatesEach]
	}
	fmt.Fprintf(sb, "- %s: %d found", heading, len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(sb, "\n  %d. %s", i+1, format(c))
	}
	sb.WriteString("\n")
}

func location(c models.EvidenceCandidate) string {
	if c.Line > 0 {
		return fmt.Sprintf("%s:%d", c.TitleOrPath, c.Line)
	}
	return c.TitleOrPath
}

func percent(similarity float64) int {
	return int(similarity * 100)
}
