package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/signalscope"
)

var tracer = otel.Tracer("repo.postgres")

// Gateway is the live implementation of domain.Methods, backed by the
// shared Postgres database. It satisfies every operation spec.md §4.1
// names for the DB Gateway component.
type Gateway struct {
	Pool         *pgxpool.Pool
	JobsWaitTime time.Duration
}

// NewGateway wraps an already-connected pool.
func NewGateway(pool *pgxpool.Pool, jobsWaitTime time.Duration) *Gateway {
	return &Gateway{Pool: pool, JobsWaitTime: jobsWaitTime}
}

func (g *Gateway) span(ctx context.Context, op, table string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, op)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

// withRetry retries fn on connection-lost class errors (spec §4.1),
// sleeping WaitBetweenReconnects between attempts, until the cumulative
// wait exceeds g.JobsWaitTime. Any other error returns immediately —
// the "fail fast" decision for database_query_update's unreachable
// retry path (SPEC_FULL.md §9). Every attempt runs inside a
// signalscope.Region so a termination signal can never interrupt a
// half-finished transaction (spec §4.1, SPEC_FULL.md §9 "Signal
// re-entrancy").
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	deadline := time.Now().Add(g.JobsWaitTime)
	for {
		err := signalscope.Do(func() error { return fn(ctx) })
		if err == nil {
			return nil
		}
		if !isConnLost(err) {
			return fmt.Errorf("op=%s: %w: %w", op, domain.ErrDBQuery, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("op=%s: %w: %w: %w", op, domain.ErrDBQuery, domain.ErrDBTransient, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("op=%s: %w", op, ctx.Err())
		case <-time.After(WaitBetweenReconnects):
		}
	}
}

func isConnLost(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 = connection exception
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return errors.Is(err, pgx.ErrNoRows) == false && isNetLikeError(err)
}

func isNetLikeError(err error) bool {
	// pgx surfaces closed-connection / broken-pipe conditions as plain
	// wrapped net errors; pgconn.SafeToRetry reports whether the driver
	// itself believes no statement was applied.
	return pgconn.SafeToRetry(err)
}
