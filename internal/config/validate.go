package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

func isDecision(raw string) bool {
	_, err := models.ParseDecision(raw)
	return err == nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors
func Validate(cfg *Config) []error {
	var errs []error

	// Vector store
	switch cfg.VectorStore.Backend {
	case "qdrant":
		if cfg.VectorStore.Qdrant.URL == "" {
			errs = append(errs, ValidationError{"vector_store.qdrant.url", "required"})
		}
	case "pgvector":
		if cfg.VectorStore.Postgres.DSN == "" {
			errs = append(errs, ValidationError{"vector_store.postgres.dsn", "required"})
		}
	default:
		errs = append(errs, ValidationError{"vector_store.backend", "must be 'qdrant' or 'pgvector'"})
	}

	// Embedding
	if cfg.Embedding.Primary.Provider == "" {
		errs = append(errs, ValidationError{"embedding.primary.provider", "required"})
	} else if cfg.Embedding.Primary.Provider != "gemini" && cfg.Embedding.Primary.Provider != "openai" {
		errs = append(errs, ValidationError{"embedding.primary.provider", "must be 'gemini' or 'openai'"})
	}
	if cfg.Embedding.Primary.APIKey == "" {
		errs = append(errs, ValidationError{"embedding.primary.api_key", "required"})
	}
	// Query and corpus vectors must come from the same model
	if fb := cfg.Embedding.Fallback; fb.Provider != "" {
		if fb.Provider != cfg.Embedding.Primary.Provider || fb.Model != cfg.Embedding.Primary.Model {
			errs = append(errs, ValidationError{"embedding.fallback", "must use the same provider and model as primary"})
		}
		if fb.Dimensions != cfg.Embedding.Primary.Dimensions {
			errs = append(errs, ValidationError{"embedding.fallback.dimensions", "must match primary dimensions"})
		}
	}

	// Reasoning provider
	switch cfg.LLM.Provider {
	case "openai", "gemini", "anthropic":
	case "":
		errs = append(errs, ValidationError{"llm.provider", "required"})
	default:
		errs = append(errs, ValidationError{"llm.provider", "must be 'openai', 'gemini' or 'anthropic'"})
	}
	if cfg.LLM.APIKey == "" {
		errs = append(errs, ValidationError{"llm.api_key", "required"})
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{"llm.temperature", "must be between 0 and 2"})
	}

	// Triage thresholds
	thresholds := map[string]float64{
		"triage.duplicate_threshold":  cfg.Triage.DuplicateThreshold,
		"triage.docs_threshold":       cfg.Triage.DocsThreshold,
		"triage.code_threshold":       cfg.Triage.CodeThreshold,
		"triage.related_pr_threshold": cfg.Triage.RelatedPRThreshold,
	}
	for field, v := range thresholds {
		if v < 0 || v > 1 {
			errs = append(errs, ValidationError{field, "must be between 0 and 1"})
		}
	}
	if cfg.Triage.EvidenceK < 1 {
		errs = append(errs, ValidationError{"triage.evidence_k", "must be at least 1"})
	}
	errs = append(errs, validatePriorityScores(cfg.Triage.PriorityScores)...)

	// Rules
	for i, p := range cfg.Rules.SpamPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, ValidationError{fmt.Sprintf("rules.spam_patterns[%d]", i), "invalid regex"})
		}
	}
	for label, decision := range cfg.Rules.FlaggedLabels {
		if !isDecision(decision) {
			errs = append(errs, ValidationError{"rules.flagged_labels." + label, "unknown decision " + decision})
		}
	}
	for i, rule := range cfg.Rules.Custom {
		prefix := fmt.Sprintf("rules.custom[%d]", i)

		if rule.Name == "" {
			errs = append(errs, ValidationError{prefix + ".name", "required"})
		}
		if !isDecision(rule.Decision) {
			errs = append(errs, ValidationError{prefix + ".decision", "must be a taxonomy decision"})
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			errs = append(errs, ValidationError{prefix + ".confidence", "must be between 0 and 1"})
		}
		if rule.Match.TitleRegex != "" {
			if _, err := regexp.Compile(rule.Match.TitleRegex); err != nil {
				errs = append(errs, ValidationError{prefix + ".match.title_regex", "invalid regex"})
			}
		}

		// At least one match condition required
		if len(rule.Match.Labels) == 0 &&
			len(rule.Match.TitleContains) == 0 &&
			len(rule.Match.BodyContains) == 0 &&
			rule.Match.TitleRegex == "" &&
			rule.Match.Author == "" {
			errs = append(errs, ValidationError{prefix + ".match", "at least one condition required"})
		}
	}

	// Batch
	if cfg.Batch.Workers < 1 {
		errs = append(errs, ValidationError{"batch.workers", "must be at least 1"})
	}
	if cfg.Batch.ProviderRPS <= 0 {
		errs = append(errs, ValidationError{"batch.provider_rps", "must be positive"})
	}

	// Events
	if cfg.Events.Enabled && cfg.Events.NatsURL == "" {
		errs = append(errs, ValidationError{"events.nats_url", "required when events are enabled"})
	}

	// Projects
	for i, p := range cfg.Projects {
		prefix := fmt.Sprintf("projects[%d]", i)

		if p.Org == "" {
			errs = append(errs, ValidationError{prefix + ".org", "required"})
		}
		if p.Repo == "" {
			errs = append(errs, ValidationError{prefix + ".repo", "required"})
		} else if strings.Contains(p.Repo, "/") {
			errs = append(errs, ValidationError{prefix + ".repo", "must not contain '/'"})
		}
		if p.DuplicateThreshold < 0 || p.DuplicateThreshold > 1 {
			errs = append(errs, ValidationError{prefix + ".duplicate_threshold", "must be between 0 and 1"})
		}
	}

	return errs
}

// validatePriorityScores checks that only known categories are scored and
// that urgency strictly falls from critical to low_priority
func validatePriorityScores(scores map[string]int) []error {
	var errs []error

	known := make(map[string]bool, len(models.PriorityCategories))
	for _, p := range models.PriorityCategories {
		known[string(p)] = true
	}
	for name, score := range scores {
		if !known[name] {
			errs = append(errs, ValidationError{"triage.priority_scores." + name, "unknown priority category"})
			continue
		}
		if score < 0 || score > 100 {
			errs = append(errs, ValidationError{"triage.priority_scores." + name, "must be between 0 and 100"})
		}
	}

	prev := ""
	for _, p := range models.PriorityCategories {
		name := string(p)
		score, ok := scores[name]
		if !ok {
			continue
		}
		if prev != "" && score >= scores[prev] {
			errs = append(errs, ValidationError{"triage.priority_scores", fmt.Sprintf("%s (%d) must score below %s (%d)", name, score, prev, scores[prev])})
		}
		prev = name
	}
	return errs
}
