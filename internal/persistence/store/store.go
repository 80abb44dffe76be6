// Package store opens the activity repository selected by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/closet/internal/config"
	"example.com/closet/internal/domain"
	"example.com/closet/internal/persistence/postgres"
	"example.com/closet/internal/persistence/sqlite"
)

// Store is an opened repository and the resources behind it.
type Store struct {
	Repository domain.ActivityRepository
	// Pool is set for the postgres driver only. The outbox dispatcher and
	// DLQ manager need it.
	Pool   *pgxpool.Pool
	closer func()
}

// Open connects to the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Store{Repository: postgres.NewRepository(pool), Pool: pool, closer: pool.Close}, nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{Repository: repo, closer: func() { _ = repo.Close() }}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}
