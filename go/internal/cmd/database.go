package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/arena/go/internal/config"
	"github.com/mcdev12/arena/go/internal/match/store"
	"github.com/rs/zerolog/log"
)

func setupStore(ctx context.Context, cfg *config.Config) (store.KV, func(), error) {
	kv, closeFn, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	if err := kv.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to ping %s store: %w", cfg.Storage.Backend, err)
	}

	log.Info().Str("backend", cfg.Storage.Backend).Msg("pending score store ready")
	return kv, closeFn, nil
}
