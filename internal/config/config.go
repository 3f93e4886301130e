package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration
type Config struct {
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Triage      TriageConfig      `yaml:"triage"`
	Rules       RulesConfig       `yaml:"rules"`
	Cost        CostConfig        `yaml:"cost"`
	Cache       CacheConfig       `yaml:"cache"`
	Batch       BatchConfig       `yaml:"batch"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Server      ServerConfig      `yaml:"server"`
	Events      EventsConfig      `yaml:"events"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Projects    []ProjectConfig   `yaml:"projects"`
}

// PipelineConfig orders the analysis steps; empty uses the default order
type PipelineConfig struct {
	Steps []string `yaml:"steps"`
}

// VectorStoreConfig selects and configures the similarity store
type VectorStoreConfig struct {
	Backend    string         `yaml:"backend"` // "qdrant" or "pgvector"
	Collection string         `yaml:"collection"`
	Qdrant     QdrantConfig   `yaml:"qdrant"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// QdrantConfig contains Qdrant connection settings
type QdrantConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// PostgresConfig contains the pgvector database settings
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// EmbeddingConfig contains embedding provider settings
type EmbeddingConfig struct {
	Primary  ProviderConfig `yaml:"primary"`
	Fallback ProviderConfig `yaml:"fallback"`
}

// ProviderConfig contains settings for an embedding provider
type ProviderConfig struct {
	Provider   string `yaml:"provider"` // "gemini" or "openai"
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig contains reasoning provider settings
type LLMConfig struct {
	Provider       string  `yaml:"provider"` // "openai", "gemini" or "anthropic"
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	MaxRetries     int     `yaml:"max_retries"`
	MaxConcurrency int     `yaml:"max_concurrency"`
}

// TriageConfig contains decision policy settings
type TriageConfig struct {
	EvidenceK          int            `yaml:"evidence_k"`
	DuplicateThreshold float64        `yaml:"duplicate_threshold"`
	DocsThreshold      float64        `yaml:"docs_threshold"`
	CodeThreshold      float64        `yaml:"code_threshold"`
	RelatedPRThreshold float64        `yaml:"related_pr_threshold"`
	EvidenceRules      bool           `yaml:"evidence_rules"`
	PriorityScores     map[string]int `yaml:"priority_scores"`
	Keywords           KeywordsConfig `yaml:"keywords"`
	DocPatterns        []string       `yaml:"doc_patterns"`
	Signature          string         `yaml:"signature"`
}

// KeywordsConfig contains the word lists used for priority categorisation
type KeywordsConfig struct {
	Critical       []string `yaml:"critical"`
	CriticalLabels []string `yaml:"critical_labels"`
	Bug            []string `yaml:"bug"`
	Feature        []string `yaml:"feature"`
	Question       []string `yaml:"question"`
}

// RulesConfig configures the pattern rule tier
type RulesConfig struct {
	Enabled         bool              `yaml:"enabled"`
	SpamPatterns    []string          `yaml:"spam_patterns"`
	MinTitleLength  int               `yaml:"min_title_length"`
	TemplateMarkers []string          `yaml:"template_markers"`
	FlaggedLabels   map[string]string `yaml:"flagged_labels"` // label -> decision
	KnownDuplicates map[int]int       `yaml:"known_duplicates"`
	Custom          []RuleConfig      `yaml:"custom"`
}

// RuleConfig is a user defined pattern rule
type RuleConfig struct {
	Name       string         `yaml:"name"`
	Match      MatchCondition `yaml:"match"`
	Decision   string         `yaml:"decision"`
	Confidence float64        `yaml:"confidence,omitempty"`
	Message    string         `yaml:"message,omitempty"`
	Priority   int            `yaml:"priority"` // Lower = higher priority
}

// MatchCondition defines conditions for matching issues
type MatchCondition struct {
	Labels        []string `yaml:"labels,omitempty"`
	TitleContains []string `yaml:"title_contains,omitempty"`
	BodyContains  []string `yaml:"body_contains,omitempty"`
	TitleRegex    string   `yaml:"title_regex,omitempty"`
	Author        string   `yaml:"author,omitempty"`
}

// CostConfig contains per-million-token pricing
type CostConfig struct {
	InputPerMTok        float64 `yaml:"input_per_mtok"`
	OutputPerMTok       float64 `yaml:"output_per_mtok"`
	CacheWriteMultiple  float64 `yaml:"cache_write_multiplier"`
	CacheReadMultiple   float64 `yaml:"cache_read_multiplier"`
	EstimatePerAnalysis float64 `yaml:"estimate_per_analysis"`
	EstimatePerRule     float64 `yaml:"estimate_per_rule"`
}

// CacheConfig contains analysis cache settings
type CacheConfig struct {
	Path     string        `yaml:"path"`
	HotTTL   time.Duration `yaml:"hot_ttl"`
	RedisURL string        `yaml:"redis_url"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// BatchConfig contains batch worker pool settings
type BatchConfig struct {
	Workers     int           `yaml:"workers"`
	ProviderRPS float64       `yaml:"provider_rps"`
	MaxIssues   int           `yaml:"max_issues"`
	StatusTTL   time.Duration `yaml:"status_ttl"`
}

// TimeoutsConfig bounds every external call
type TimeoutsConfig struct {
	VectorQuery time.Duration `yaml:"vector_query"`
	Embedding   time.Duration `yaml:"embedding"`
	LLM         time.Duration `yaml:"llm"`
	GitHub      time.Duration `yaml:"github"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	BodyLimit        int    `yaml:"body_limit"`
	AnalyzePerMinute int    `yaml:"analyze_per_minute"`
	BatchPerMinute   int    `yaml:"batch_per_minute"`
}

// EventsConfig contains NATS publishing settings
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NatsURL string `yaml:"nats_url"`
	Stream  string `yaml:"stream"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// ProjectConfig contains settings for a specific repository
type ProjectConfig struct {
	Org                string  `yaml:"org"`
	Repo               string  `yaml:"repo"`
	Enabled            bool    `yaml:"enabled"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold,omitempty"`
}

// Load reads and parses config from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a config from raw YAML
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expandConfigEnvVars(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a config with only defaults applied
func Default() *Config {
	var cfg Config
	expandConfigEnvVars(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

// FindConfigPath looks for config in common locations
func FindConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	paths := []string{
		".github/triage.yaml",
		".github/triage.yml",
		"triage.yaml",
		"triage.yml",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homePath := filepath.Join(home, ".config", "gh-triage", "config.yaml")
		if _, err := os.Stat(homePath); err == nil {
			return homePath
		}
	}

	return ""
}

// GetProjectConfig returns config for a specific project
func (c *Config) GetProjectConfig(org, repo string) *ProjectConfig {
	for i := range c.Projects {
		if c.Projects[i].Org == org && c.Projects[i].Repo == repo {
			return &c.Projects[i]
		}
	}
	return nil
}

// DuplicateThreshold returns the effective evidence-duplicate threshold for a project
func (c *Config) DuplicateThreshold(org, repo string) float64 {
	if p := c.GetProjectConfig(org, repo); p != nil && p.DuplicateThreshold > 0 {
		return p.DuplicateThreshold
	}
	return c.Triage.DuplicateThreshold
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "qdrant"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "triage_corpus"
	}
	if cfg.Embedding.Primary.Dimensions == 0 {
		cfg.Embedding.Primary.Dimensions = 768
	}
	if cfg.Embedding.Fallback.Dimensions == 0 {
		cfg.Embedding.Fallback.Dimensions = cfg.Embedding.Primary.Dimensions
	}

	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1500
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.MaxConcurrency == 0 {
		cfg.LLM.MaxConcurrency = 4
	}

	if cfg.Triage.EvidenceK == 0 {
		cfg.Triage.EvidenceK = 5
	}
	if cfg.Triage.DuplicateThreshold == 0 {
		cfg.Triage.DuplicateThreshold = 0.85
	}
	if cfg.Triage.DocsThreshold == 0 {
		cfg.Triage.DocsThreshold = 0.80
	}
	if cfg.Triage.CodeThreshold == 0 {
		cfg.Triage.CodeThreshold = 0.80
	}
	if cfg.Triage.RelatedPRThreshold == 0 {
		cfg.Triage.RelatedPRThreshold = 0.75
	}
	// Categories left out of the file keep their default score
	scores := DefaultPriorityScores()
	for name, score := range cfg.Triage.PriorityScores {
		scores[name] = score
	}
	cfg.Triage.PriorityScores = scores
	if len(cfg.Triage.DocPatterns) == 0 {
		cfg.Triage.DocPatterns = []string{".md", ".rst", "readme", "docs/", "documentation", "doc/", ".txt"}
	}
	applyKeywordDefaults(&cfg.Triage.Keywords)

	if cfg.Rules.MinTitleLength == 0 {
		cfg.Rules.MinTitleLength = 8
	}

	if cfg.Cost.InputPerMTok == 0 {
		cfg.Cost.InputPerMTok = 3.00
	}
	if cfg.Cost.OutputPerMTok == 0 {
		cfg.Cost.OutputPerMTok = 15.00
	}
	if cfg.Cost.CacheWriteMultiple == 0 {
		cfg.Cost.CacheWriteMultiple = 1.25
	}
	if cfg.Cost.CacheReadMultiple == 0 {
		cfg.Cost.CacheReadMultiple = 0.1
	}
	if cfg.Cost.EstimatePerAnalysis == 0 {
		cfg.Cost.EstimatePerAnalysis = 0.015
	}
	if cfg.Cost.EstimatePerRule == 0 {
		cfg.Cost.EstimatePerRule = 0.02
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(".gh-triage", "analyses.db")
	}
	if cfg.Cache.HotTTL == 0 {
		cfg.Cache.HotTTL = time.Hour
	}
	if cfg.Cache.LockTTL == 0 {
		cfg.Cache.LockTTL = 2 * time.Minute
	}

	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = 4
	}
	if cfg.Batch.ProviderRPS == 0 {
		cfg.Batch.ProviderRPS = 2
	}
	if cfg.Batch.MaxIssues == 0 {
		cfg.Batch.MaxIssues = 200
	}
	if cfg.Batch.StatusTTL == 0 {
		cfg.Batch.StatusTTL = time.Hour
	}

	if cfg.Timeouts.VectorQuery == 0 {
		cfg.Timeouts.VectorQuery = 5 * time.Second
	}
	if cfg.Timeouts.Embedding == 0 {
		cfg.Timeouts.Embedding = 10 * time.Second
	}
	if cfg.Timeouts.LLM == 0 {
		cfg.Timeouts.LLM = 60 * time.Second
	}
	if cfg.Timeouts.GitHub == 0 {
		cfg.Timeouts.GitHub = 15 * time.Second
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.BodyLimit == 0 {
		cfg.Server.BodyLimit = 4 * 1024 * 1024
	}
	if cfg.Server.AnalyzePerMinute == 0 {
		cfg.Server.AnalyzePerMinute = 30
	}
	if cfg.Server.BatchPerMinute == 0 {
		cfg.Server.BatchPerMinute = 5
	}

	if cfg.Events.Stream == "" {
		cfg.Events.Stream = "TRIAGE"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join("logs", "gh-triage.log")
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "gh-triage"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
	// Rules.Enabled and Triage.EvidenceRules default to false (zero value) - must be explicitly enabled
}

// DefaultPriorityScores returns the urgency lookup keyed by priority category
func DefaultPriorityScores() map[string]int {
	return map[string]int{
		"critical":        95,
		"bug":             70,
		"feature_request": 45,
		"question":        30,
		"low_priority":    10,
	}
}

func applyKeywordDefaults(k *KeywordsConfig) {
	if len(k.Critical) == 0 {
		k.Critical = []string{
			"security", "vulnerability", "exploit", "breach", "cve",
			"crash", "crashes", "crashing", "hang", "freeze", "segfault",
			"breaking", "broken", "blocks", "blocker", "production",
			"urgent", "critical", "emergency", "data loss", "corruption",
			"failure", "down",
		}
	}
	if len(k.CriticalLabels) == 0 {
		k.CriticalLabels = []string{"critical", "security", "blocker", "urgent", "p0", "high priority"}
	}
	if len(k.Bug) == 0 {
		k.Bug = []string{
			"bug", "broken", "doesn't work", "not working", "fails", "error",
			"issue", "problem", "wrong", "incorrect", "unexpected",
		}
	}
	if len(k.Feature) == 0 {
		k.Feature = []string{
			"add", "support", "implement", "allow", "enable", "would be nice",
			"could we", "feature request", "enhancement", "suggestion",
		}
	}
	if len(k.Question) == 0 {
		k.Question = []string{"how do i", "how to", "how can", "why does", "what is", "is it possible", "can someone explain"}
	}
}
