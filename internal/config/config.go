// Package config loads splitlab settings from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

type Config struct {
	DBPath    string `env:"SPLITLAB_DB_PATH" envDefault:"./splitlab.db"`
	Port      int    `env:"SPLITLAB_PORT" envDefault:"8080"`
	LogLevel  string `env:"SPLITLAB_LOG_LEVEL" envDefault:"info"`
	CacheSize int    `env:"SPLITLAB_CACHE_SIZE" envDefault:"100000"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Logger builds the process logger at the configured level. Unknown levels
// fall back to info.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
