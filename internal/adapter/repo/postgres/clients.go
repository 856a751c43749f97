package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// SignOn inserts this worker's Client row, grounded on database.h's
// QUERY_INSERT_CLIENT, and upserts the grid queue's host fields when
// they were previously NULL (spec §4.1 insert_client side effect).
func (g *Gateway) SignOn(ctx domain.Context, host domain.HostInfo, gridQueueID int) (int, error) {
	var id int
	err := g.withRetry(ctx, "postgres.SignOn", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "INSERT", "Client")
		defer span.End()
		return g.Pool.QueryRow(ctx, `
			INSERT INTO "Client"
				(numCores, numThreads, hyperthreading, turboboost, cpuModel,
				 cacheSizeKB, cpuFlags, memoryTotal, memoryFree, hostname, ip,
				 gridQueue_idgridQueue, lastReport)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
			RETURNING idClient`,
			host.NumCores, host.NumThreads, host.Hyperthreading, host.Turboboost,
			host.CPUModel, host.CacheSizeKB, host.CPUFlags, host.MemoryTotal,
			host.MemoryFree, host.Hostname, host.IP, gridQueueID,
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}

	if err := g.withRetry(ctx, "postgres.SignOn.fillGridQueueInfo", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "GridQueue")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `
			UPDATE "GridQueue" SET numCPUs = COALESCE(numCPUs, $1), cpuModel = COALESCE(cpuModel, $2)
			WHERE idgridQueue = $3`, host.NumCores, host.CPUModel, gridQueueID)
		return err
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// SignOff deletes this worker's Client row, grounded on
// database.h's QUERY_DELETE_CLIENT.
func (g *Gateway) SignOff(ctx domain.Context, clientID int) error {
	return g.withRetry(ctx, "postgres.SignOff", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "DELETE", "Client")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `DELETE FROM "Client" WHERE idClient = $1`, clientID)
		return err
	})
}

// ReadMessage atomically reads and clears Client.message, grounded on
// database.h's LOCK_MESSAGE/CLEAR_MESSAGE pair.
func (g *Gateway) ReadMessage(ctx domain.Context, clientID int) (string, error) {
	var msg string
	err := g.withRetry(ctx, "postgres.ReadMessage", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "Client")
		defer span.End()

		tx, err := g.Pool.Begin(ctx)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback(ctx)
			}
		}()

		err = tx.QueryRow(ctx,
			`SELECT message FROM "Client" WHERE idClient = $1 FOR UPDATE`, clientID,
		).Scan(&msg)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("%w: client %d not found", domain.ErrDBQuery, clientID)
			}
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE "Client" SET message = '' WHERE idClient = $1`, clientID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg, nil
}

// Report updates the client's lastReport heartbeat.
func (g *Gateway) Report(ctx domain.Context, clientID int, at time.Time) error {
	return g.withRetry(ctx, "postgres.Report", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "Client")
		defer span.End()
		_, err := g.Pool.Exec(ctx,
			`UPDATE "Client" SET lastReport = $1 WHERE idClient = $2`, at, clientID)
		return err
	})
}
