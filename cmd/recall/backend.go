package main

import (
	"context"
	"fmt"

	"github.com/Strob0t/recall/internal/adapter/memory"
	"github.com/Strob0t/recall/internal/adapter/natskv"
	"github.com/Strob0t/recall/internal/adapter/postgres"
	"github.com/Strob0t/recall/internal/adapter/redis"
	"github.com/Strob0t/recall/internal/config"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// backend is the opened key-value store with its lifecycle hooks.
type backend struct {
	store kvstore.Store
	ping  func(ctx context.Context) error
	close func()
}

// openBackend connects the store selected by cfg.Store.Backend.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return &backend{store: memory.New(), close: func() {}}, nil

	case config.BackendRedis:
		s, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, ping: s.Ping, close: func() { _ = s.Close() }}, nil

	case config.BackendNATS:
		s, err := natskv.Connect(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, ping: s.Ping, close: func() { _ = s.Close() }}, nil

	case config.BackendPostgres:
		s, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, ping: s.Ping, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
