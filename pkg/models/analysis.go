package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current TriageAnalysis record shape.
// Version 1 was the flat category/priority shape, see MigrateLegacy.
const SchemaVersion = 2

// ErrOutOfTaxonomy is returned when a decision is not one of the known values.
var ErrOutOfTaxonomy = errors.New("decision outside taxonomy")

// Decision is a triage outcome from the closed taxonomy
type Decision string

const (
	DecisionCloseDuplicate     Decision = "CLOSE_DUPLICATE"
	DecisionCloseFixed         Decision = "CLOSE_FIXED"
	DecisionCloseExists        Decision = "CLOSE_EXISTS"
	DecisionNeedsInvestigation Decision = "NEEDS_INVESTIGATION"
	DecisionValidFeature       Decision = "VALID_FEATURE"
	DecisionNeedsInfo          Decision = "NEEDS_INFO"
	DecisionAnswerFromDocs     Decision = "ANSWER_FROM_DOCS"
	DecisionInvalid            Decision = "INVALID"
)

// Decisions lists the taxonomy in display order
var Decisions = []Decision{
	DecisionCloseDuplicate,
	DecisionCloseFixed,
	DecisionCloseExists,
	DecisionNeedsInvestigation,
	DecisionValidFeature,
	DecisionNeedsInfo,
	DecisionAnswerFromDocs,
	DecisionInvalid,
}

// Valid reports whether d is a member of the taxonomy
func (d Decision) Valid() bool {
	for _, known := range Decisions {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDecision converts a raw provider value into a Decision.
// Only surrounding whitespace is tolerated; anything else is rejected.
func ParseDecision(raw string) (Decision, error) {
	d := Decision(strings.TrimSpace(raw))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrOutOfTaxonomy, raw)
	}
	return d, nil
}

// PriorityCategory is the urgency bucket used for priority scoring
type PriorityCategory string

const (
	PriorityCritical PriorityCategory = "critical"
	PriorityBug      PriorityCategory = "bug"
	PriorityFeature  PriorityCategory = "feature_request"
	PriorityQuestion PriorityCategory = "question"
	PriorityLow      PriorityCategory = "low_priority"
)

// PriorityCategories lists categories from most to least urgent
var PriorityCategories = []PriorityCategory{
	PriorityCritical,
	PriorityBug,
	PriorityFeature,
	PriorityQuestion,
	PriorityLow,
}

// Cost is the token and dollar cost of producing an analysis
type Cost struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CachedTokens int     `json:"cached_tokens"`
	TotalCost    float64 `json:"total_cost"`
	Estimated    bool    `json:"estimated,omitempty"`
}

// IsZero reports whether nothing was spent
func (c Cost) IsZero() bool {
	return c.InputTokens == 0 && c.OutputTokens == 0 && c.CachedTokens == 0 && c.TotalCost == 0
}

// Add returns the sum of two costs
func (c Cost) Add(o Cost) Cost {
	return Cost{
		InputTokens:  c.InputTokens + o.InputTokens,
		OutputTokens: c.OutputTokens + o.OutputTokens,
		CachedTokens: c.CachedTokens + o.CachedTokens,
		TotalCost:    c.TotalCost + o.TotalCost,
		Estimated:    c.Estimated || o.Estimated,
	}
}

// DocLink points at a documentation chunk relevant to the issue
type DocLink struct {
	File       string  `json:"file"`
	Line       int     `json:"line,omitempty"`
	Similarity float64 `json:"similarity"`
}

// SuggestedResponse is a ready-to-post reply draft
type SuggestedResponse struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ActionLabel string   `json:"action_label"`
	Actions     []string `json:"actions"`
}

// TriageAnalysis is the stored decision for one issue of one project.
// Records are immutable; a forced re-analysis writes a new record.
type TriageAnalysis struct {
	SchemaVersion      int                 `json:"schema_version"`
	ID                 string              `json:"id"`
	ProjectID          string              `json:"project_id"`
	IssueNumber        int                 `json:"issue_number"`
	Decision           Decision            `json:"decision"`
	Confidence         float64             `json:"confidence"`
	PrimaryMessage     string              `json:"primary_message"`
	EvidenceBullets    []string            `json:"evidence_bullets"`
	DuplicateOf        *int                `json:"duplicate_of,omitempty"`
	RelatedPRs         []int               `json:"related_prs"`
	DocLinks           []DocLink           `json:"doc_links"`
	SuggestedResponses []SuggestedResponse `json:"suggested_responses"`
	PriorityScore      int                 `json:"priority_score"`
	Priority           PriorityCategory    `json:"priority"`
	RuleMatched        *string             `json:"rule_matched,omitempty"`
	Cost               Cost                `json:"cost"`
	Degraded           bool                `json:"degraded,omitempty"`
	Model              string              `json:"model,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

// Validate checks the record invariants before it is persisted
func (a *TriageAnalysis) Validate() error {
	if !a.Decision.Valid() {
		return fmt.Errorf("%w: %q", ErrOutOfTaxonomy, a.Decision)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range", a.Confidence)
	}
	if a.DuplicateOf != nil && a.Decision != DecisionCloseDuplicate {
		return fmt.Errorf("duplicate_of set for decision %s", a.Decision)
	}
	if a.RuleMatched != nil && !a.Cost.IsZero() {
		return fmt.Errorf("rule %s matched but cost is non-zero", *a.RuleMatched)
	}
	if len(a.SuggestedResponses) > 3 {
		return fmt.Errorf("too many suggested responses: %d", len(a.SuggestedResponses))
	}
	return nil
}

// IsRuleBased reports whether the decision bypassed the reasoning provider
func (a *TriageAnalysis) IsRuleBased() bool {
	return a.RuleMatched != nil
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// LegacyAnalysis is the version 1 record shape
type LegacyAnalysis struct {
	ProjectID       string    `json:"project_id"`
	IssueNumber     int       `json:"issue_number"`
	PrimaryCategory string    `json:"primary_category"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	DuplicateOf     *int      `json:"duplicate_of,omitempty"`
	RelatedPRs      []int     `json:"related_prs"`
	PriorityScore   int       `json:"priority_score"`
	NeedsResponse   bool      `json:"needs_response"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
}

// MigrateLegacy converts a version 1 record into the current shape.
// Responses are not stored on old records and must be recomposed by the caller.
func MigrateLegacy(old LegacyAnalysis) TriageAnalysis {
	a := TriageAnalysis{
		SchemaVersion:   SchemaVersion,
		ProjectID:       old.ProjectID,
		IssueNumber:     old.IssueNumber,
		Confidence:      old.Confidence,
		PrimaryMessage:  old.Reasoning,
		EvidenceBullets: []string{},
		RelatedPRs:      old.RelatedPRs,
		DocLinks:        []DocLink{},
		PriorityScore:   old.PriorityScore,
		Priority:        PriorityCategory(old.PrimaryCategory),
		CreatedAt:       old.CreatedAt,
	}
	if a.RelatedPRs == nil {
		a.RelatedPRs = []int{}
	}

	switch {
	case old.DuplicateOf != nil:
		a.Decision = DecisionCloseDuplicate
		a.DuplicateOf = IntPtr(*old.DuplicateOf)
	case old.PrimaryCategory == string(PriorityFeature):
		a.Decision = DecisionValidFeature
	case old.PrimaryCategory == string(PriorityQuestion):
		a.Decision = DecisionAnswerFromDocs
	case old.PrimaryCategory == string(PriorityLow):
		a.Decision = DecisionNeedsInfo
	default:
		a.Decision = DecisionNeedsInvestigation
	}

	if a.Confidence < 0 || a.Confidence > 1 {
		a.Confidence = 0
	}
	return a
}
