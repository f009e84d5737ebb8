package cli

import (
	"fmt"

	"github.com/splitlab/splitlab/internal/engine"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

// withStore opens the database, runs fn, and closes it.
func withStore(fn func(s *store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func newManager(s *store.SQLiteStore) *experiment.Manager {
	return experiment.NewManager(s, cfg.Logger())
}

func newEngine(s *store.SQLiteStore, m *experiment.Manager) *engine.Engine {
	return engine.New(s, m, s, engine.NewCache(cfg.CacheSize), cfg.Logger())
}
