package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		limit         int
		minSimilarity float64
	)

	cmd := &cobra.Command{
		Use:   "search <org/repo> <query>",
		Short: "Search for similar issues",
		Long:  `Search the issue pool of a project using semantic similarity.`,
		Args:  cobra.ExactArgs(2),
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

			results, err := a.engine.SemanticSearch(ctx, args[0], args[1], limit, minSimilarity)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No similar issues found")
				return nil
			}

			fmt.Printf("Found %d similar issues:\n\n", len(results))
			for i, r := range results {
				status := green("Open")
				if r.State == "closed" {
					status = gray("Closed")
				}
				fmt.Printf("%d. #%d - %s\n", i+1, r.Number, r.Title)
				fmt.Printf("   Similarity: %.1f%% | Status: %s\n", r.Similarity*100, status)
				if r.URL != "" {
					fmt.Printf("   %s\n", r.URL)
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "k", 10, "maximum results to return")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0.5, "minimum similarity (0-1)")

	return cmd
}
