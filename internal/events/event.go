// Package events publishes triage lifecycle events to a message bus.
package events

import (
	"time"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Event types
const (
	TypeAnalysisCompleted = "analysis.completed"
	TypeBatchCompleted    = "batch.completed"
	TypeResponsePosted    = "response.posted"
)

// Event defines the contract for all published events.
type Event interface {
	// EventType returns the subject suffix for this event (e.g. "analysis.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the only Event implementation
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// AnalysisCompleted is emitted after every Analyze, cached or not
func AnalysisCompleted(a *models.TriageAnalysis, fromCache bool) Event {
	data := map[string]interface{}{
		"analysis_id":  a.ID,
		"project_id":   a.ProjectID,
		"issue_number": a.IssueNumber,
		"decision":     string(a.Decision),
		"confidence":   a.Confidence,
		"priority":     string(a.Priority),
		"from_cache":   fromCache,
		"cost":         a.Cost.TotalCost,
		"degraded":     a.Degraded,
	}
	if a.RuleMatched != nil {
		data["rule_matched"] = *a.RuleMatched
	}
	if a.DuplicateOf != nil {
		data["duplicate_of"] = *a.DuplicateOf
	}
	return BaseEvent{Type: TypeAnalysisCompleted, Data: data, OccurredAt: time.Now().UTC()}
}

// BatchCompleted is emitted when a batch finishes or is cancelled
func BatchCompleted(project string, s *models.BatchSummary) Event {
	return BaseEvent{
		Type: TypeBatchCompleted,
		Data: map[string]interface{}{
			"project_id": project,
			"total":      s.Total,
			"processed":  s.Processed,
			"paid":       s.Paid,
			"cache_hits": s.CacheHits,
			"rule_hits":  s.RuleHits,
			"failed":     s.Failed,
			"cost":       s.TotalCost.TotalCost,
			"cost_saved": s.CostSaved,
			"cancelled":  s.Cancelled,
		},
		OccurredAt: time.Now().UTC(),
	}
}

// ResponsePosted is emitted after a suggested response was applied
func ResponsePosted(project string, number int, responseType, commentURL string) Event {
	return BaseEvent{
		Type: TypeResponsePosted,
		Data: map[string]interface{}{
			"project_id":   project,
			"issue_number": number,
			"type":         responseType,
			"comment_url":  commentURL,
		},
		OccurredAt: time.Now().UTC(),
	}
}
