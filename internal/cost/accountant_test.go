package cost

import (
	"sync"
	"testing"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/stretchr/testify/assert"
)

func defaultAccountant() *Accountant {
	return NewAccountant(config.Default().Cost)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name  string
		usage *llm.Usage
		want  float64
	}{
		{
			name:  "plain input and output",
			usage: &llm.Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
			want:  3.0 + 1.5,
		},
		{
			name:  "cache read billed at a tenth",
			usage: &llm.Usage{InputTokens: 2000, OutputTokens: 200, CacheReadTokens: 1500},
			// 500*3e-6 + 1500*3e-7 + 200*15e-6
			want: 0.0015 + 0.00045 + 0.003,
		},
		{
			name:  "cache write billed at a premium",
			usage: &llm.Usage{InputTokens: 2000, OutputTokens: 0, CacheWriteTokens: 1000},
			// 1000*3e-6 + 1000*3.75e-6
			want: 0.003 + 0.00375,
		},
	}

	a := defaultAccountant()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Compute(tt.usage)
			assert.InDelta(t, tt.want, got.TotalCost, 1e-6)
			assert.False(t, got.Estimated)
			assert.Equal(t, tt.usage.InputTokens, got.InputTokens)
			assert.Equal(t, tt.usage.CacheReadTokens, got.CachedTokens)
		})
	}
}

func TestCompute_MissingUsageFallsBackToEstimate(t *testing.T) {
	got := defaultAccountant().Compute(nil)
	assert.True(t, got.Estimated)
	assert.Equal(t, 0.015, got.TotalCost)
}

func TestSaved(t *testing.T) {
	a := defaultAccountant()

	paid := &models.TriageAnalysis{Cost: models.Cost{TotalCost: 0.0042}}
	assert.Equal(t, 0.0042, a.Saved(paid))

	rule := &models.TriageAnalysis{RuleMatched: models.StringPtr("spam")}
	assert.Equal(t, 0.015, a.Saved(rule))
	assert.Equal(t, 0.02, a.RuleSaving())
}

func TestTracker(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AddSynthesis(models.Cost{InputTokens: 100, OutputTokens: 10, TotalCost: 0.001})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AddCacheHit(0.015)
		}()
	}
	wg.Wait()
	tr.AddRuleHit(0.02)

	s := tr.Summary()
	assert.Equal(t, 40, s.Syntheses)
	assert.Equal(t, 10, s.CacheHits)
	assert.Equal(t, 1, s.RuleHits)
	assert.Equal(t, 4000, s.InputTokens)
	assert.InDelta(t, 0.04, s.TotalCost, 1e-9)
	assert.InDelta(t, 0.17, s.Saved, 1e-9)
}
