package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(
		transitionCmd("start", "Start a draft experiment",
			func(m *experiment.Manager, ctx context.Context, id string) (*store.Experiment, error) {
				return m.Start(ctx, id)
			}),
		transitionCmd("stop", "Complete an active experiment",
			func(m *experiment.Manager, ctx context.Context, id string) (*store.Experiment, error) {
				return m.Stop(ctx, id)
			}),
		transitionCmd("pause", "Pause an active experiment",
			func(m *experiment.Manager, ctx context.Context, id string) (*store.Experiment, error) {
				return m.Pause(ctx, id)
			}),
		transitionCmd("resume", "Resume a paused experiment",
			func(m *experiment.Manager, ctx context.Context, id string) (*store.Experiment, error) {
				return m.Resume(ctx, id)
			}),
		transitionCmd("cancel", "Cancel an experiment",
			func(m *experiment.Manager, ctx context.Context, id string) (*store.Experiment, error) {
				return m.Cancel(ctx, id)
			}),
	)
}

func transitionCmd(use, short string, fn func(*experiment.Manager, context.Context, string) (*store.Experiment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <experiment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				exp, err := fn(newManager(s), context.Background(), args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment %q not found", args[0])
					}
					return err
				}
				fmt.Printf("Experiment %q is now %s\n", exp.Name, exp.Status)
				if exp.EndDate != nil && exp.Status == store.StatusActive {
					fmt.Printf("Runs until %s\n", exp.EndDate.Format("2006-01-02"))
				}
				return nil
			})
		},
	}
}
