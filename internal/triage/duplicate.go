package triage

import (
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Rule ids of the evidence tier
const (
	RuleEvidenceDuplicate = "evidence_duplicate"
	RuleFoundInDocs       = "found_in_docs"
	RuleExistsInCode      = "exists_in_code"
)

// evidenceDecision is a decision taken from retrieval scores alone
type evidenceDecision struct {
	rule        string
	decision    models.Decision
	confidence  float64
	message     string
	bullets     []string
	duplicateOf *int
}

// checkEvidence applies the evidence rule tier. The duplicate check always
// runs; the docs and code checks only when enabled.
func (s *Synthesizer) checkEvidence(issue *models.Issue, bundle *models.EvidenceBundle) *evidenceDecision {
	if bundle == nil || bundle.Degraded {
		return nil
	}

	if d := checkDuplicate(bundle, s.cfg.DuplicateThreshold(issue.Org, issue.Repo)); d != nil {
		return d
	}

	if !s.cfg.Triage.EvidenceRules {
		return nil
	}

	if len(bundle.SimilarDocs) > 0 && s.keywords.isQuestion(issue) {
		doc := bundle.SimilarDocs[0]
		if doc.Similarity >= s.cfg.Triage.DocsThreshold {
			return &evidenceDecision{
				rule:       RuleFoundInDocs,
				decision:   models.DecisionAnswerFromDocs,
				confidence: doc.Similarity,
				message:    "This is already explained in the documentation",
				bullets: []string{
					fmt.Sprintf("Found in %s", doc.TitleOrPath),
					fmt.Sprintf("%.0f%% relevance", doc.Similarity*100),
				},
			}
		}
	}

	if len(bundle.SimilarCode) > 0 && s.keywords.isFeatureRequest(issue) {
		code := bundle.SimilarCode[0]
		if code.Similarity >= s.cfg.Triage.CodeThreshold {
			location := code.TitleOrPath
			if code.Line > 0 {
				location = fmt.Sprintf("%s:%d", code.TitleOrPath, code.Line)
			}
			return &evidenceDecision{
				rule:       RuleExistsInCode,
				decision:   models.DecisionCloseExists,
				confidence: code.Similarity,
				message:    "This feature already exists in the codebase",
				bullets: []string{
					fmt.Sprintf("Found in %s", location),
					fmt.Sprintf("%.0f%% match", code.Similarity*100),
				},
			}
		}
	}

	return nil
}

// checkDuplicate fires when the best similar issue clears the threshold
// and is already closed
func checkDuplicate(bundle *models.EvidenceBundle, threshold float64) *evidenceDecision {
	top, ok := bundle.TopIssue()
	if !ok || top.Similarity < threshold || !top.IsClosed() {
		return nil
	}

	return &evidenceDecision{
		rule:       RuleEvidenceDuplicate,
		decision:   models.DecisionCloseDuplicate,
		confidence: top.Similarity,
		message:    fmt.Sprintf("This is the same as issue #%d", top.Number),
		bullets: []string{
			fmt.Sprintf("%.0f%% similarity match", top.Similarity*100),
			fmt.Sprintf("Original: %s", strings.TrimSpace(top.TitleOrPath)),
			fmt.Sprintf("Status: %s", top.State),
		},
		duplicateOf: models.IntPtr(top.Number),
	}
}
