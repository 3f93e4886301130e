package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "expands env var",
			input:  "${TEST_VAR}",
			expect: "test-value",
		},
		{
			name:   "keeps unset var",
			input:  "${UNSET_VAR}",
			expect: "${UNSET_VAR}",
		},
		{
			name:   "expands in string",
			input:  "https://${TEST_VAR}.example.com",
			expect: "https://test-value.example.com",
		},
		{
			name:   "no vars",
			input:  "plain string",
			expect: "plain string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expect {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expect)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TRIAGE_LLM_KEY", "sk-test")

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	content := `
vector_store:
  backend: qdrant
  qdrant:
    url: "http://localhost:6334"

embedding:
  primary:
    provider: "gemini"
    model: "gemini-embedding-001"
    api_key: "test-key"

llm:
  provider: anthropic
  api_key: "${TRIAGE_LLM_KEY}"

triage:
  duplicate_threshold: 0.9
  priority_scores:
    critical: 99

rules:
  enabled: true
  known_duplicates:
    42: 10

timeouts:
  llm: 30s

projects:
  - org: "testorg"
    repo: "testrepo"
    enabled: true
    duplicate_threshold: 0.8
`

	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VectorStore.Qdrant.URL != "http://localhost:6334" {
		t.Errorf("VectorStore.Qdrant.URL = %v, want http://localhost:6334", cfg.VectorStore.Qdrant.URL)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM.APIKey = %v, want sk-test", cfg.LLM.APIKey)
	}
	if cfg.Timeouts.LLM != 30*time.Second {
		t.Errorf("Timeouts.LLM = %v, want 30s", cfg.Timeouts.LLM)
	}
	if cfg.Rules.KnownDuplicates[42] != 10 {
		t.Errorf("KnownDuplicates[42] = %d, want 10", cfg.Rules.KnownDuplicates[42])
	}
	if cfg.Triage.PriorityScores["critical"] != 99 {
		t.Errorf("PriorityScores[critical] = %d, want 99", cfg.Triage.PriorityScores["critical"])
	}
	// Unset categories keep their defaults
	if cfg.Triage.PriorityScores["bug"] != 70 {
		t.Errorf("PriorityScores[bug] = %d, want 70", cfg.Triage.PriorityScores["bug"])
	}
	if got := cfg.DuplicateThreshold("testorg", "testrepo"); got != 0.8 {
		t.Errorf("DuplicateThreshold(testorg/testrepo) = %v, want 0.8", got)
	}
	if got := cfg.DuplicateThreshold("other", "repo"); got != 0.9 {
		t.Errorf("DuplicateThreshold(other/repo) = %v, want 0.9", got)
	}

	assert.Empty(t, Validate(cfg))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Triage.DuplicateThreshold != 0.85 {
		t.Errorf("DuplicateThreshold = %v, want 0.85", cfg.Triage.DuplicateThreshold)
	}
	if cfg.Triage.EvidenceK != 5 {
		t.Errorf("EvidenceK = %v, want 5", cfg.Triage.EvidenceK)
	}
	if cfg.Cost.InputPerMTok != 3.00 || cfg.Cost.OutputPerMTok != 15.00 {
		t.Errorf("pricing = %v/%v, want 3/15", cfg.Cost.InputPerMTok, cfg.Cost.OutputPerMTok)
	}
	if cfg.Server.AnalyzePerMinute != 30 || cfg.Server.BatchPerMinute != 5 {
		t.Errorf("limits = %d/%d, want 30/5", cfg.Server.AnalyzePerMinute, cfg.Server.BatchPerMinute)
	}
	if cfg.VectorStore.Backend != "qdrant" {
		t.Errorf("Backend = %v, want qdrant", cfg.VectorStore.Backend)
	}
	if cfg.Rules.Enabled {
		t.Errorf("Rules.Enabled = true, want false by default")
	}

	require.Len(t, cfg.Triage.PriorityScores, 5)
	assert.Greater(t, cfg.Triage.PriorityScores["critical"], cfg.Triage.PriorityScores["bug"])
	assert.Greater(t, cfg.Triage.PriorityScores["bug"], cfg.Triage.PriorityScores["feature_request"])
	assert.Greater(t, cfg.Triage.PriorityScores["feature_request"], cfg.Triage.PriorityScores["question"])
	assert.Greater(t, cfg.Triage.PriorityScores["question"], cfg.Triage.PriorityScores["low_priority"])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.VectorStore.Qdrant.URL = "localhost:6334"
		cfg.Embedding.Primary.Provider = "openai"
		cfg.Embedding.Primary.APIKey = "k"
		cfg.LLM.Provider = "openai"
		cfg.LLM.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "faiss" }, "vector_store.backend"},
		{"pgvector without dsn", func(c *Config) { c.VectorStore.Backend = "pgvector" }, "vector_store.postgres.dsn"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"threshold range", func(c *Config) { c.Triage.DuplicateThreshold = 1.5 }, "triage.duplicate_threshold"},
		{"bad spam regex", func(c *Config) { c.Rules.SpamPatterns = []string{"("} }, "rules.spam_patterns[0]"},
		{"flagged label decision", func(c *Config) { c.Rules.FlaggedLabels = map[string]string{"spam": "DELETE"} }, "rules.flagged_labels.spam"},
		{"custom rule without match", func(c *Config) {
			c.Rules.Custom = []RuleConfig{{Name: "x", Decision: "INVALID"}}
		}, "rules.custom[0].match"},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, "events.nats_url"},
		{"custom rule decision", func(c *Config) {
			c.Rules.Custom = []RuleConfig{{Name: "x", Decision: "CLOSE_WONTFIX", Match: MatchCondition{Labels: []string{"wontfix"}}}}
		}, "rules.custom[0].decision"},
		{"priority scores out of order", func(c *Config) {
			c.Triage.PriorityScores = map[string]int{"critical": 10, "bug": 99, "feature_request": 45, "question": 30, "low_priority": 80}
		}, "triage.priority_scores"},
		{"unknown priority category", func(c *Config) { c.Triage.PriorityScores["urgent"] = 99 }, "triage.priority_scores.urgent"},
		{"priority score range", func(c *Config) { c.Triage.PriorityScores["critical"] = 120 }, "triage.priority_scores.critical"},
	}

	assert.Empty(t, Validate(valid()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			var fields []string
			for _, err := range Validate(cfg) {
				if ve, ok := err.(ValidationError); ok {
					fields = append(fields, ve.Field)
				}
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GH_TRIAGE_DOTENV_TEST=from-file\n"), 0644))

	t.Setenv("GH_TRIAGE_DOTENV_TEST", "")
	os.Unsetenv("GH_TRIAGE_DOTENV_TEST")

	require.NoError(t, LoadDotEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("GH_TRIAGE_DOTENV_TEST"))
}
