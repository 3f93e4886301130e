package models

// CategoryStats aggregates current analyses of a project. It is derived on
// every read and never stored.
type CategoryStats struct {
	ProjectID        string                   `json:"project_id"`
	Decisions        map[Decision]int         `json:"decisions"`
	Priorities       map[PriorityCategory]int `json:"priorities"`
	Analyzed         int                      `json:"analyzed"`
	NeedsTriageCount int                      `json:"needs_triage_count"`
	TodayCount       int                      `json:"today_count"`
	RuleMatched      int                      `json:"rule_matched"`
	TotalCost        float64                  `json:"total_cost"`
}

// NewCategoryStats returns stats with every bucket present at zero
func NewCategoryStats(project string) *CategoryStats {
	s := &CategoryStats{
		ProjectID:  project,
		Decisions:  make(map[Decision]int, len(Decisions)),
		Priorities: make(map[PriorityCategory]int, len(PriorityCategories)),
	}
	for _, d := range Decisions {
		s.Decisions[d] = 0
	}
	for _, p := range PriorityCategories {
		s.Priorities[p] = 0
	}
	return s
}
