package main

import (
	"fmt"
	"os"

	"github.com/mcdev12/arena/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loadConfig reads the config and sets up console logging at its level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	log.Info().
		Str("config", path).
		Str("storage", cfg.Storage.Backend).
		Str("reporter", cfg.Reporter.BaseURL).
		Bool("nats", cfg.NATS.URL != "").
		Msg("configuration loaded")
	return cfg, nil
}
