package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/results"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newResultsCmd())
}

func newResultsCmd() *cobra.Command {
	var normalized bool

	cmd := &cobra.Command{
		Use:   "results <experiment-id>",
		Short: "Show detailed results for an experiment",
		Long:  `Show per-variant metrics, significance against the control, and recommendations.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				eng := results.New(s)
				eng.NormalizedScoring = normalized

				report, err := eng.Analyze(context.Background(), args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment %q not found", args[0])
					}
					return fmt.Errorf("failed to analyze: %w", err)
				}

				printReport(report)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&normalized, "normalized", false, "normalize metrics before winner scoring")
	return cmd
}

func printReport(report *results.Report) {
	fmt.Printf("EXPERIMENT: %s\n", report.ExperimentName)
	fmt.Printf("STATUS: %s\n", report.Status)
	fmt.Println()

	fmt.Println("VARIANT           ASSIGNED  METRICS                         SIGNIFICANCE")
	fmt.Println(strings.Repeat("─", 78))

	for _, v := range report.Variants {
		indicator := ""
		if v.Name == report.Winner && len(report.Variants) > 1 {
			indicator = " ← WINNER"
		}

		var metricParts []string
		for _, m := range v.Metrics {
			metricParts = append(metricParts, fmt.Sprintf("%s=%.2f", m.Name, m.Value))
		}

		sig := "control"
		if v.Significance != nil {
			sig = fmt.Sprintf("p=%.4f lift=%+.1f%%", v.Significance.PValue, v.Significance.Lift)
			if v.Significance.Significant {
				sig += " *"
			}
		}

		name := v.Name
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Printf("%-16s  %-8d  %-30s  %s%s\n",
			name, v.Assignments, strings.Join(metricParts, " "), sig, indicator)
	}

	if len(report.Recommendations) > 0 {
		fmt.Println()
		for _, rec := range report.Recommendations {
			fmt.Printf("• %s\n", rec)
		}
	}
}
