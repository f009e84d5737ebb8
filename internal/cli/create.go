package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/audience"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		hypothesis   string
		variants     string
		metrics      string
		duration     int
		roles        []string
		regions      []string
		tags         []string
		emailDomains []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment in draft status.

Variants are "name=percentage" pairs; omit the percentage for an even split.
Metrics are "name:event:aggregation" triples (aggregation is one of
conversion, average, count); the first metric is primary.

Examples:
  splitlab create onboarding --variants "control=50,new-flow=50"
  splitlab create pricing --variants "control,annual-first" \
    --metrics "purchase rate:purchase:conversion,order value:purchase:average" \
    --roles author,editor --duration 14`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if variants == "" {
				entered, err := promptVariants()
				if err != nil {
					return err
				}
				variants = entered
			}

			variantSpecs, err := parseVariants(variants)
			if err != nil {
				return err
			}

			metricSpecs, err := parseMetrics(metrics)
			if err != nil {
				return err
			}

			spec := experiment.CreateSpec{
				Name:         name,
				Hypothesis:   hypothesis,
				Variants:     variantSpecs,
				Metrics:      metricSpecs,
				DurationDays: duration,
			}
			if len(roles) > 0 || len(regions) > 0 || len(tags) > 0 || len(emailDomains) > 0 {
				spec.TargetAudience = &audience.Audience{
					Roles:        roles,
					Regions:      regions,
					Tags:         tags,
					EmailDomains: emailDomains,
				}
			}

			return withStore(func(s *store.SQLiteStore) error {
				manager := newManager(s)
				exp, created, err := manager.Create(context.Background(), spec)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment %q (%s)\n", exp.Name, exp.ID)
				for _, v := range created {
					fmt.Printf("  %-20s %5.1f%%  %s\n", v.Name, v.TrafficPercentage, v.ID)
				}
				fmt.Printf("\nStart it with: splitlab start %s\n", exp.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&hypothesis, "hypothesis", "", "what the experiment tests")
	cmd.Flags().StringVar(&variants, "variants", "", "comma-separated name=percentage pairs")
	cmd.Flags().StringVar(&metrics, "metrics", "", "comma-separated name:event:aggregation triples")
	cmd.Flags().IntVar(&duration, "duration", 7, "experiment duration in days")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "restrict to these user roles")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "restrict to these regions")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "require at least one of these interest tags")
	cmd.Flags().StringSliceVar(&emailDomains, "email-domains", nil, "restrict to these email domains")

	return cmd
}

func promptVariants() (string, error) {
	prompt := promptui.Prompt{
		Label:   "Variants (name=percentage, comma-separated)",
		Default: "control=50,challenger=50",
	}
	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return "", fmt.Errorf("cancelled")
		}
		return "", err
	}
	return result, nil
}

func parseVariants(s string) ([]experiment.VariantSpec, error) {
	var specs []experiment.VariantSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, pctStr, hasPct := strings.Cut(entry, "=")
		spec := experiment.VariantSpec{Name: strings.TrimSpace(name)}
		if hasPct {
			pct, err := strconv.ParseFloat(strings.TrimSpace(pctStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid percentage in %q: %w", entry, err)
			}
			spec.TrafficPercentage = &pct
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("need at least one variant. Example: --variants \"control=50,B=50\"")
	}
	return specs, nil
}

func parseMetrics(s string) ([]store.Metric, error) {
	if s == "" {
		// A bare conversion metric on the "convert" event.
		return []store.Metric{{Name: "conversion", EventKey: "convert", Aggregation: store.AggConversion}}, nil
	}

	var metrics []store.Metric
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid metric %q, want name:event:aggregation", entry)
		}
		metrics = append(metrics, store.Metric{
			Name:        strings.TrimSpace(parts[0]),
			EventKey:    strings.TrimSpace(parts[1]),
			Aggregation: store.Aggregation(strings.TrimSpace(parts[2])),
		})
	}
	return metrics, nil
}
