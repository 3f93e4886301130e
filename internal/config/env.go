package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // Keep original if env var not set
	})
}

// expandConfigEnvVars expands environment variables in config string fields
func expandConfigEnvVars(cfg *Config) {
	cfg.VectorStore.Qdrant.URL = expandEnvVars(cfg.VectorStore.Qdrant.URL)
	cfg.VectorStore.Qdrant.APIKey = expandEnvVars(cfg.VectorStore.Qdrant.APIKey)
	cfg.VectorStore.Postgres.DSN = expandEnvVars(cfg.VectorStore.Postgres.DSN)
	cfg.Embedding.Primary.APIKey = expandEnvVars(cfg.Embedding.Primary.APIKey)
	cfg.Embedding.Fallback.APIKey = expandEnvVars(cfg.Embedding.Fallback.APIKey)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Cache.RedisURL = expandEnvVars(cfg.Cache.RedisURL)
	cfg.Events.NatsURL = expandEnvVars(cfg.Events.NatsURL)

	// Fall back to conventional variables when the config leaves keys empty
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}
	if cfg.Embedding.Primary.APIKey == "" {
		cfg.Embedding.Primary.APIKey = providerKeyFromEnv(cfg.Embedding.Primary.Provider)
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if os.Getenv("OTEL_ENABLED") == "true" {
		cfg.Telemetry.Enabled = true
	}
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}
