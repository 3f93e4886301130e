package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kavirubc/gh-triage/internal/engine"
)

func newIndexCmd() *cobra.Command {
	var opts engine.IndexOptions

	cmd := &cobra.Command{
		Use:   "index <org/repo>",
		Short: "Index issues and pull requests into the vector store",
		Long: `Index the issues (and pull requests) of a repository into the issue and PR
pools used as evidence. Use --since to only refresh recently updated items.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.corpusIndexer().IndexProject(ctx, args[0], opts)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			fmt.Printf("Indexed %d items (%d issues, %d PRs; %d skipped, %d errors) in %dms\n",
				stats.Indexed, stats.TotalIssues, stats.TotalPRs, stats.Skipped, stats.Errors, stats.DurationMs)
			if dryRun {
				fmt.Println(yellow("[DRY RUN] nothing was written to the vector store"))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&opts.MaxIssues, "max", 0, "maximum issues to index (0 = all)")
	cmd.Flags().BoolVar(&opts.PullRequests, "prs", true, "also index pull requests")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only index items updated within this window (e.g. 24h, 7d)")

	return cmd
}
