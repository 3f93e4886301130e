package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", yellow("!"), fmt.Sprintf(format, args...))
}

// decisionColor groups decisions by how final they are
func decisionColor(d models.Decision) func(a ...interface{}) string {
	switch d {
	case models.DecisionCloseDuplicate, models.DecisionCloseFixed, models.DecisionCloseExists, models.DecisionInvalid:
		return gray
	case models.DecisionNeedsInvestigation:
		return red
	case models.DecisionNeedsInfo:
		return yellow
	default:
		return green
	}
}

func printAnalysis(res *models.AnalysisResult) {
	a := res.Analysis
	fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== %s#%d ===", a.ProjectID, a.IssueNumber)))

	paint := decisionColor(a.Decision)
	fmt.Printf("Decision:   %s (%.0f%% confidence)\n", paint(string(a.Decision)), a.Confidence*100)
	fmt.Printf("Priority:   %s (%d)\n", a.Priority, a.PriorityScore)
	if a.RuleMatched != nil {
		fmt.Printf("Rule:       %s\n", *a.RuleMatched)
	}
	if a.DuplicateOf != nil {
		fmt.Printf("Duplicate:  #%d\n", *a.DuplicateOf)
	}
	if len(a.RelatedPRs) > 0 {
		prs := make([]string, len(a.RelatedPRs))
		for i, n := range a.RelatedPRs {
			prs[i] = fmt.Sprintf("#%d", n)
		}
		fmt.Printf("Related:    %s\n", strings.Join(prs, ", "))
	}
	if a.Degraded {
		fmt.Printf("Evidence:   %s\n", yellow("degraded (vector store unavailable)"))
	}

	fmt.Printf("\n%s\n", a.PrimaryMessage)
	for _, b := range a.EvidenceBullets {
		fmt.Printf("  - %s\n", b)
	}
	for _, d := range a.DocLinks {
		fmt.Printf("  %s %s (%.0f%%)\n", gray("doc"), d.File, d.Similarity*100)
	}

	if len(a.SuggestedResponses) > 0 {
		fmt.Printf("\n%s\n", yellow("Suggested responses:"))
		for i, r := range a.SuggestedResponses {
			fmt.Printf("  [%d] %s %s\n", i, r.Title, gray(strings.Join(r.Actions, ", ")))
		}
	}

	if res.FromCache {
		fmt.Printf("\n%s saved $%.4f\n", green("cached"), res.CostSaved)
	} else {
		fmt.Printf("\n%s $%.4f (%d in / %d out tokens)\n", gray("cost"), a.Cost.TotalCost, a.Cost.InputTokens, a.Cost.OutputTokens)
	}
}

func printBatchItem(item models.BatchItemResult) {
	switch {
	case item.Error != "":
		fmt.Printf("  %s #%d %s\n", red("✗"), item.IssueNumber, item.Error)
	case item.FromCache:
		fmt.Printf("  %s #%d %s %s\n", gray("●"), item.IssueNumber, item.Analysis.Decision, gray("(cached)"))
	default:
		paint := decisionColor(item.Analysis.Decision)
		fmt.Printf("  %s #%d %s\n", green("●"), item.IssueNumber, paint(string(item.Analysis.Decision)))
	}
	fmt.Printf("    %s\n", gray(fmt.Sprintf("running cost $%.4f, saved $%.4f", item.RunningCost, item.RunningSaved)))
}

func printBatchSummary(s *models.BatchSummary) {
	fmt.Printf("\n%s\n", cyan("=== Batch Summary ==="))
	fmt.Printf("Processed:  %d/%d\n", s.Processed, s.Total)
	fmt.Printf("Paid:       %d\n", s.Paid)
	fmt.Printf("Cache hits: %d\n", s.CacheHits)
	fmt.Printf("Rule hits:  %d\n", s.RuleHits)
	if s.Failed > 0 {
		fmt.Printf("Failed:     %s\n", red(s.Failed))
	}
	if s.Cancelled {
		fmt.Printf("Cancelled:  %s (%d not started)\n", yellow("yes"), s.Skipped)
	}
	fmt.Printf("Cost:       $%.4f\n", s.TotalCost.TotalCost)
	fmt.Printf("Saved:      $%.4f\n", s.CostSaved)
}

func printStats(s *models.CategoryStats) {
	fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== %s ===", s.ProjectID)))
	fmt.Printf("Analyzed:     %d\n", s.Analyzed)
	fmt.Printf("Needs triage: %s\n", yellow(s.NeedsTriageCount))
	fmt.Printf("Today:        %d\n", s.TodayCount)
	fmt.Printf("Rule matched: %d\n", s.RuleMatched)
	fmt.Printf("Total cost:   $%.4f\n", s.TotalCost)

	fmt.Printf("\n%s\n", yellow("Decisions:"))
	for _, d := range models.Decisions {
		fmt.Printf("  %-20s %d\n", d, s.Decisions[d])
	}
	fmt.Printf("\n%s\n", yellow("Priorities:"))
	for _, p := range models.PriorityCategories {
		fmt.Printf("  %-20s %d\n", p, s.Priorities[p])
	}
}

func printSessionCost(s cost.Summary) {
	if s.Syntheses == 0 && s.CacheHits == 0 && s.RuleHits == 0 {
		return
	}
	fmt.Printf("%s\n", gray(fmt.Sprintf("session: %d syntheses, %d cache hits, %d rule hits, $%.4f spent, $%.4f saved",
		s.Syntheses, s.CacheHits, s.RuleHits, s.TotalCost, s.Saved)))
}
