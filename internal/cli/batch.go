package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

func newBatchCmd() *cobra.Command {
	var (
		open    bool
		workers int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "batch <org/repo> [numbers...]",
		Short: "Analyze many issues with a bounded worker pool",
		Long: `Analyze the given issues, or every open issue with --open. Results stream
as they finish. Ctrl-C stops starting new issues; finished analyses stay cached.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			project := args[0]
			var numbers []int
			for _, arg := range args[1:] {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid issue number %q", arg)
				}
				numbers = append(numbers, n)
			}
			if len(numbers) > 0 && open {
				return fmt.Errorf("give issue numbers or --open, not both")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Batch.Workers = workers
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if open {
				if numbers, err = a.gh.OpenIssueNumbers(ctx, project); err != nil {
					return fmt.Errorf("failed to list open issues: %w", err)
				}
				fmt.Printf("Found %d open issues\n", len(numbers))
			}

			var onResult func(models.BatchItemResult)
			if !asJSON {
				onResult = printBatchItem
			}

			summary, err := a.engine.BatchAnalyze(ctx, project, numbers, onResult)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(summary)
			}
			printBatchSummary(summary)
			printSessionCost(a.engine.SessionCost())
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "analyze every open issue")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent analyses (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")

	return cmd
}
