// Package postgres implements the store contracts on PostgreSQL using pgx
// directly (no ORM). Every hot-counter mutation is a single conditional
// UPDATE whose WHERE clause names the expected prior state, so concurrent
// callers serialize per row without application-level locks held across I/O.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetflow/meetflow/internal/config"
	"github.com/meetflow/meetflow/internal/store"
)

// NewPool creates and validates a pgxpool connection pool. It retries a few
// times to accommodate containers still starting up.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				return pool, nil
			}
			pool.Close()
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// transient tags an unexpected storage failure as retryable for callers.
func transient(op string, err error) error {
	return &store.TransientError{Op: op, Err: err}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
