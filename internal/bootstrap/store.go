// Package bootstrap builds the pieces every binary shares from a Config: the
// trigger store and the action registry.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/health"
	"github.com/ErlanBelekov/triggerd/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/triggerd/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/triggerd/internal/repository"
)

type Store struct {
	Repo   repository.TriggerRepository
	Health health.Dependency
	close  func()
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to the configured backend and applies its schema.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", "driver", "sqlite", "path", cfg.SQLitePath)
		return &Store{
			Repo:   sqlite.NewTriggerRepository(db, logger),
			Health: health.Dependency{Name: "store", Pinger: health.PingerFunc(db.PingContext)},
			close:  func() { _ = db.Close() },
		}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store opened", "driver", "postgres")
		return &Store{
			Repo:   postgres.NewTriggerRepository(pool, logger),
			Health: health.Dependency{Name: "store", Pinger: pool},
			close:  pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
