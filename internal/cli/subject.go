package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/audience"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newSubjectCmd())
}

// The subjects table backs the audience resolver for deployments that do
// not plug in a remote user service.
func newSubjectCmd() *cobra.Command {
	var (
		role        string
		emailDomain string
		region      string
		tags        []string
		registered  string
	)

	cmd := &cobra.Command{
		Use:   "subject <subject-id>",
		Short: "Register or update a subject's targeting attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registeredAt := time.Now()
			if registered != "" {
				t, err := time.Parse("2006-01-02", registered)
				if err != nil {
					return fmt.Errorf("invalid --registered date, want YYYY-MM-DD: %w", err)
				}
				registeredAt = t
			}

			subject := &audience.Subject{
				ID:           args[0],
				Role:         role,
				EmailDomain:  emailDomain,
				Region:       region,
				Tags:         tags,
				RegisteredAt: registeredAt,
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.PutSubject(context.Background(), subject); err != nil {
					return fmt.Errorf("failed to save subject: %w", err)
				}
				fmt.Printf("Saved subject %s\n", subject.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "user role")
	cmd.Flags().StringVar(&emailDomain, "email-domain", "", "email domain")
	cmd.Flags().StringVar(&region, "region", "", "region code")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "interest tags")
	cmd.Flags().StringVar(&registered, "registered", "", "registration date (YYYY-MM-DD)")
	return cmd
}
