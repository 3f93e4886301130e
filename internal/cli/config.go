package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Kavirubc/gh-triage/internal/config"
)

const sampleConfig = `vector_store:
  backend: qdrant
  collection: triage_corpus
  qdrant:
    url: ${QDRANT_URL}
    api_key: ${QDRANT_API_KEY}

embedding:
  primary:
    provider: gemini
    api_key: ${GEMINI_API_KEY}
    dimensions: 768
  fallback:
    provider: openai
    api_key: ${OPENAI_API_KEY}
    dimensions: 768

llm:
  provider: anthropic
  api_key: ${ANTHROPIC_API_KEY}

triage:
  evidence_k: 5
  duplicate_threshold: 0.85
  evidence_rules: true

rules:
  enabled: true

cache:
  path: .gh-triage/analyses.db

batch:
  workers: 4
  provider_rps: 2

projects:
  - org: your-org
    repo: your-repo
    enabled: true
`

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "triage.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create directory: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("%s %s\n", green("Wrote"), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfgPath := config.FindConfigPath(cfgFile)
			if cfgPath == "" {
				return fmt.Errorf("config file not found")
			}

			fmt.Printf("Validating config: %s\n", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if errs := config.Validate(cfg); len(errs) > 0 {
				fmt.Println("\nValidation errors:")
				for _, e := range errs {
					fmt.Printf("  - %v\n", red(e))
				}
				return fmt.Errorf("configuration is invalid")
			}

			fmt.Printf("\n%s\n", green("Configuration is valid!"))
			fmt.Printf("  - Vector store: %s (%s)\n", cfg.VectorStore.Backend, cfg.VectorStore.Collection)
			fmt.Printf("  - Primary embedding: %s (%s)\n", cfg.Embedding.Primary.Provider, cfg.Embedding.Primary.Model)
			fmt.Printf("  - Reasoner: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
			fmt.Printf("  - Projects: %d configured\n", len(cfg.Projects))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfgPath := config.FindConfigPath(cfgFile)
			if cfgPath == "" {
				return fmt.Errorf("config file not found")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out, err := yaml.Marshal(masked(*cfg))
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Printf("# %s\n%s", cfgPath, out)
			return nil
		},
	}
}

// masked returns cfg with credentials replaced
func masked(cfg config.Config) config.Config {
	for _, s := range []*string{
		&cfg.VectorStore.Qdrant.APIKey,
		&cfg.VectorStore.Postgres.DSN,
		&cfg.Embedding.Primary.APIKey,
		&cfg.Embedding.Fallback.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Cache.RedisURL,
	} {
		*s = maskSecret(*s)
	}
	return cfg
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
