package models

import "time"

// SearchResult represents a similar issue found via semantic search
type SearchResult struct {
	Number     int     `json:"number"`
	Title      string  `json:"title"`
	State      string  `json:"state"`
	URL        string  `json:"url,omitempty"`
	Similarity float64 `json:"similarity"`
}

// IndexStats contains statistics from an indexing operation
type IndexStats struct {
	TotalIssues int `json:"total_issues"`
	TotalPRs    int `json:"total_prs"`
	Indexed     int `json:"indexed"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
	DurationMs  int `json:"duration_ms"`
}

// AnalysisResult is what analyze returns to callers
type AnalysisResult struct {
	Analysis  *TriageAnalysis `json:"analysis"`
	FromCache bool            `json:"from_cache"`
	CostSaved float64         `json:"cost_saved"`
}

// BatchItemResult is streamed once per issue of a batch
type BatchItemResult struct {
	IssueNumber  int             `json:"issue_number"`
	Analysis     *TriageAnalysis `json:"analysis,omitempty"`
	FromCache    bool            `json:"from_cache"`
	Error        string          `json:"error,omitempty"`
	RunningCost  float64         `json:"running_cost"`
	RunningSaved float64         `json:"running_saved"`
}

// BatchState is the lifecycle state of a batch run
type BatchState string

const (
	BatchNotStarted BatchState = "not_started"
	BatchRunning    BatchState = "running"
	BatchCompleted  BatchState = "completed"
	BatchFailed     BatchState = "failed"
	BatchCancelled  BatchState = "cancelled"
)

// BatchSummary aggregates a finished (or cancelled) batch
type BatchSummary struct {
	Total     int               `json:"total"`
	Processed int               `json:"processed"`
	Paid      int               `json:"paid"`
	CacheHits int               `json:"cache_hits"`
	RuleHits  int               `json:"rule_hits"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	TotalCost Cost              `json:"total_cost"`
	CostSaved float64           `json:"cost_saved"`
	Results   []BatchItemResult `json:"results"`
	Cancelled bool              `json:"cancelled"`
}

// BatchStatus is the progress record polled by API clients
type BatchStatus struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Status       BatchState `json:"status"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	CurrentIssue int        `json:"current_issue,omitempty"`
	Errors       []string   `json:"errors"`
	RunningCost  float64    `json:"running_cost"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}
