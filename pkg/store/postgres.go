package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/config"
)

// Postgres is the relational AlertStore backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// Ensure Postgres implements the store interfaces
var (
	_ AlertStore     = (*Postgres)(nil)
	_ SnapshotSource = (*Postgres)(nil)
)

// NewPostgres connects to the database and bootstraps the alert schema
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure alert schema: %w", err)
	}

	logrus.Info("Connected to postgres alert store")
	return s, nil
}

// Close releases the connection pool
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping verifies the store is reachable
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
