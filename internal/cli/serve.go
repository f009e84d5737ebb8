package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/engine"
	"github.com/splitlab/splitlab/internal/results"
	"github.com/splitlab/splitlab/internal/server"
	"github.com/splitlab/splitlab/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the splitlab server",
	Long: `Start the HTTP server exposing assignment, tracking, and results.

Example:
  splitlab serve
  splitlab serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from SPLITLAB_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	log := cfg.Logger()

	manager := newManager(s)
	if err := manager.LoadActive(context.Background()); err != nil {
		return fmt.Errorf("failed to load active experiments: %w", err)
	}

	eng := engine.New(s, manager, s, engine.NewCache(cfg.CacheSize), log)
	res := results.New(s)

	listenPort := cfg.Port
	if port != 0 {
		listenPort = port
	}

	srv := server.New(s, manager, eng, res, listenPort, log)
	fmt.Printf("splitlab running on http://localhost:%d\n", listenPort)
	return srv.Start()
}
