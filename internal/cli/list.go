package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		experiments, err := s.ListExperiments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet. Create one with: splitlab create <name>")
			return nil
		}

		fmt.Println("NAME                  STATUS     VARIANTS  CREATED     ID")
		fmt.Println(strings.Repeat("─", 92))

		for _, exp := range experiments {
			variants, err := s.Variants(context.Background(), exp.ID)
			if err != nil {
				return fmt.Errorf("failed to load variants: %w", err)
			}

			name := exp.Name
			if len(name) > 20 {
				name = name[:17] + "..."
			}

			fmt.Printf("%-20s  %-9s  %-8d  %s  %s\n",
				name,
				exp.Status,
				len(variants),
				exp.CreatedAt.Format("2006-01-02"),
				exp.ID,
			)
		}

		return nil
	})
}
