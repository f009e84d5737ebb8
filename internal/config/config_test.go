package config_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/splitlab/splitlab/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != "./splitlab.db" {
		t.Errorf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SPLITLAB_DB_PATH", "/tmp/exp.db")
	t.Setenv("SPLITLAB_PORT", "9090")
	t.Setenv("SPLITLAB_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/exp.db" {
		t.Errorf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Logger().GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level logger, got %v", cfg.Logger().GetLevel())
	}
}

func TestLogger_UnknownLevelFallsBack(t *testing.T) {
	t.Setenv("SPLITLAB_LOG_LEVEL", "shouting")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Logger().GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %v", cfg.Logger().GetLevel())
	}
}
