package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/store"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment-id> <subject-id>",
	Short: "Show which variant a subject is bucketed into",
	Long: `Assign a subject to a variant. Assignment is deterministic: the same
subject always lands in the same variant while the experiment runs.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		eng := newEngine(s, newManager(s))
		variant, err := eng.Assign(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to assign: %w", err)
		}
		fmt.Println(variant)
		return nil
	})
}
