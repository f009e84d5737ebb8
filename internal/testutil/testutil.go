package testutil

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/splitlab/splitlab/internal/store"
)

// SetupTestStore creates a throwaway database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// Logger returns a silent logger for tests.
func Logger() zerolog.Logger {
	return zerolog.Nop()
}
