// Package cost turns provider token usage into dollars and keeps running totals.
package cost

import (
	"math"
	"sync"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

const tokensPerMillion = 1_000_000

// Accountant prices provider usage
type Accountant struct {
	cfg config.CostConfig
}

// NewAccountant creates an accountant for the given price table
func NewAccountant(cfg config.CostConfig) *Accountant {
	return &Accountant{cfg: cfg}
}

// Compute prices one synthesis call. Cache writes bill at a multiple of the
// input price, cache reads at a fraction of it. When the provider reported
// no usage the fixed estimate is returned instead.
func (a *Accountant) Compute(usage *llm.Usage) models.Cost {
	if usage == nil {
		return a.Estimate()
	}

	regularInput := usage.InputTokens - usage.CacheReadTokens - usage.CacheWriteTokens
	if regularInput < 0 {
		regularInput = 0
	}

	inputPrice := a.cfg.InputPerMTok / tokensPerMillion
	total := float64(regularInput)*inputPrice +
		float64(usage.CacheWriteTokens)*inputPrice*a.cfg.CacheWriteMultiple +
		float64(usage.CacheReadTokens)*inputPrice*a.cfg.CacheReadMultiple +
		float64(usage.OutputTokens)*a.cfg.OutputPerMTok/tokensPerMillion

	return models.Cost{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CachedTokens: usage.CacheReadTokens,
		TotalCost:    round6(total),
	}
}

// Estimate is the conservative fixed cost of one synthesis
func (a *Accountant) Estimate() models.Cost {
	return models.Cost{TotalCost: a.cfg.EstimatePerAnalysis, Estimated: true}
}

// Saved returns what serving a stored analysis avoided paying: the recorded
// cost of a paid synthesis, or the fixed estimate otherwise.
func (a *Accountant) Saved(analysis *models.TriageAnalysis) float64 {
	if analysis != nil && analysis.Cost.TotalCost > 0 {
		return analysis.Cost.TotalCost
	}
	return a.cfg.EstimatePerAnalysis
}

// RuleSaving is what a rule-tier decision avoided paying
func (a *Accountant) RuleSaving() float64 {
	return a.cfg.EstimatePerRule
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Summary is a snapshot of running totals
type Summary struct {
	Syntheses    int     `json:"syntheses"`
	CacheHits    int     `json:"cache_hits"`
	RuleHits     int     `json:"rule_hits"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CachedTokens int     `json:"cached_tokens"`
	TotalCost    float64 `json:"total_cost"`
	Saved        float64 `json:"saved"`
}

// Tracker accumulates session or batch totals; safe for concurrent use
type Tracker struct {
	mu sync.Mutex
	s  Summary
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// AddSynthesis records a paid provider call
func (t *Tracker) AddSynthesis(c models.Cost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Syntheses++
	t.s.InputTokens += c.InputTokens
	t.s.OutputTokens += c.OutputTokens
	t.s.CachedTokens += c.CachedTokens
	t.s.TotalCost = round6(t.s.TotalCost + c.TotalCost)
}

// AddCacheHit records an analysis served from the cache
func (t *Tracker) AddCacheHit(saved float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CacheHits++
	t.s.Saved = round6(t.s.Saved + saved)
}

// AddRuleHit records a decision made by the rule tiers
func (t *Tracker) AddRuleHit(saved float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.RuleHits++
	t.s.Saved = round6(t.s.Saved + saved)
}

// Summary returns a copy of the running totals
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
