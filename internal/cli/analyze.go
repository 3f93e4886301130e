package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		force   bool
		asJSON  bool
		postIdx int
	)

	cmd := &cobra.Command{
		Use:   "analyze <org/repo> <number>",
		Short: "Analyze one issue",
		Long: `Analyze an issue and print the decision, evidence and suggested responses.
A stored analysis is returned unless --force is given. With --post N the
suggested response at index N is posted to the issue.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			number, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid issue number %q", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Analyze(ctx, args[0], number, force)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			if asJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printAnalysis(res)
				printSessionCost(a.engine.SessionCost())
			}

			if postIdx >= 0 {
				out, err := a.engine.Respond(ctx, args[0], number, postIdx)
				if err != nil {
					return fmt.Errorf("failed to post response: %w", err)
				}
				if out.DryRun {
					fmt.Println(yellow("[DRY RUN] response not posted"))
				} else {
					fmt.Printf("%s %s\n", green("Posted"), out.CommentURL)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-analyze even when an analysis is stored")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().IntVar(&postIdx, "post", -1, "post the suggested response at this index")

	return cmd
}
