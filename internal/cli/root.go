package cli

import (
	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/config"
)

var (
	cfg    config.Config
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "splitlab",
	Short: "Splitlab - the experimentation engine for the content platform",
	Long: `Splitlab runs A/B experiments: deterministic variant assignment,
audience targeting, event tracking, and chi-square significance testing.
Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'splitlab serve').`,
	RunE: runServe,
}

func Execute() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")
	return rootCmd.Execute()
}
