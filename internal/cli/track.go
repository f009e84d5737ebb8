package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newTrackCmd())
}

func newTrackCmd() *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "track <experiment-id> <subject-id> <event>",
		Short: "Record an event for a subject",
		Long: `Record a named event against the subject's assigned variant. Tracking
implicitly assigns the subject if no assignment exists yet.

Example:
  splitlab track 3f2a... reader-88 purchase --payload '{"value": 12.5}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("payload is not valid JSON")
				}
				raw = json.RawMessage(payload)
			}

			return withStore(func(s *store.SQLiteStore) error {
				eng := newEngine(s, newManager(s))
				if err := eng.Track(context.Background(), args[0], args[1], args[2], raw); err != nil {
					return fmt.Errorf("failed to track event: %w", err)
				}
				fmt.Printf("Recorded %q for subject %s\n", args[2], args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload; a numeric \"value\" field feeds average metrics")
	return cmd
}
