package triage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// providerDecision is the JSON object the provider must reply with
type providerDecision struct {
	Decision        string   `json:"decision"`
	Confidence      float64  `json:"confidence"`
	PrimaryMessage  string   `json:"primary_message"`
	EvidenceBullets []string `json:"evidence_bullets"`
	DuplicateOf     *int     `json:"duplicate_of"`
	RelatedPRs      []int    `json:"related_prs"`
}

// parseDecision decodes a provider reply. A reply that is not JSON fails
// with ErrSynthesisFailed; a decision outside the taxonomy fails with
// models.ErrOutOfTaxonomy and is never coerced.
func parseDecision(text string) (*providerDecision, models.Decision, error) {
	var pd providerDecision
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &pd); err != nil {
		return nil, "", fmt.Errorf("%w: malformed response: %v", ErrSynthesisFailed, err)
	}

	decision, err := models.ParseDecision(pd.Decision)
	if err != nil {
		return nil, "", err
	}

	if pd.Confidence < 0 {
		pd.Confidence = 0
	}
	if pd.Confidence > 1 {
		pd.Confidence = 1
	}
	if decision != models.DecisionCloseDuplicate {
		pd.DuplicateOf = nil
	}

	bullets := pd.EvidenceBullets[:0]
	for _, b := range pd.EvidenceBullets {
		if b = strings.TrimSpace(b); b != "" {
			bullets = append(bullets, b)
		}
	}
	pd.EvidenceBullets = bullets

	return &pd, decision, nil
}
