package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

func TestAnalysisCompleted(t *testing.T) {
	a := &models.TriageAnalysis{
		ID:          "a-1",
		ProjectID:   "acme/widgets",
		IssueNumber: 42,
		Decision:    models.DecisionCloseDuplicate,
		DuplicateOf: models.IntPtr(12),
		RuleMatched: models.StringPtr("evidence_duplicate"),
	}

	e := AnalysisCompleted(a, true)
	assert.Equal(t, "triage.analysis.completed", Subject(e))
	assert.Equal(t, 12, e.Payload()["duplicate_of"])
	assert.Equal(t, "evidence_duplicate", e.Payload()["rule_matched"])
	assert.Equal(t, true, e.Payload()["from_cache"])

	data, err := Encode(e)
	require.NoError(t, err)

	var decoded struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeAnalysisCompleted, decoded.Type)
	assert.Equal(t, "CLOSE_DUPLICATE", decoded.Data["decision"])
}

func TestNewPublisher_Disabled(t *testing.T) {
	p, err := NewPublisher(&config.EventsConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), ResponsePosted("acme/widgets", 1, "close_fixed", "")))
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), BatchCompleted("acme/widgets", &models.BatchSummary{Total: 3})))
	require.NoError(t, r.Publish(context.Background(), ResponsePosted("acme/widgets", 1, "close_fixed", "u")))
	assert.Equal(t, []string{TypeBatchCompleted, TypeResponsePosted}, r.Types())
	assert.Len(t, r.Events(), 2)
}
