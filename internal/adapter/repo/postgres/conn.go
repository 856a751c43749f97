// Package postgres is the DB Gateway: the sole component that issues SQL
// against the shared job database. Every exported operation corresponds
// to one of spec.md §4.1's named gateway calls, translated from the
// original MySQL text in original_source/src/database.h into
// parameterized pgx queries.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/edacc-worker/internal/config"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// WaitBetweenReconnects is the fixed sleep between reconnect attempts
// (original_source's WAIT_BETWEEN_RECONNECTS).
const WaitBetweenReconnects = 5 * time.Second

// DSN builds a pgx connection string from the worker's loaded config.
func DSN(cfg config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// NewPool creates a pgx connection pool, instrumented with otelpgx
// tracing exactly as the teacher's postgres.NewPool does, sized for one
// primary long-lived connection plus headroom for the Control Channel
// and artifact-lock refresher secondary connections (spec §4.1/§5).
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w: %w", domain.ErrDBConnect, err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w: %w", domain.ErrDBConnect, err)
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx stats", slog.Any("error", err))
	}
	return pool, nil
}

// NewPoolWithRetry keeps attempting NewPool with exponential backoff
// (cenkalti/backoff) until jobsWaitTime elapses, matching spec §4.1's
// "retry until cumulative wait exceeds jobs_wait_time, then fail"
// contract for the initial connection.
func NewPoolWithRetry(ctx context.Context, dsn string, jobsWaitTime time.Duration) (*pgxpool.Pool, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = WaitBetweenReconnects
	bo.MaxInterval = WaitBetweenReconnects
	bo.MaxElapsedTime = jobsWaitTime
	bo.Multiplier = 1 // fixed-interval retries, matching the original's plain sleep loop

	var pool *pgxpool.Pool
	op := func() error {
		p, err := NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("op=postgres.NewPoolWithRetry: %w: %w", domain.ErrDBConnect, err)
		}
		pool = p
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return pool, nil
}
