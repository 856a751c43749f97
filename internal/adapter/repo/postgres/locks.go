package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// DownloadTimeout is how long a lock row may go un-refreshed before a
// competing worker is allowed to steal it (spec §4.2).
const DownloadTimeout = 10 * time.Second

// LockArtifact attempts to acquire the cross-worker download lock for
// (binaryID, filesystemID), grounded on database_fs_locking.cc's
// lock_file: insert the row if absent, or steal it if its lastReport is
// older than DownloadTimeout, guarded by SELECT ... FOR UPDATE. Keying by
// binaryID as well as filesystemID (spec §3/§4.2's compound key) keeps an
// unrelated solver and instance download on the same filesystem from
// contending on one another's lock row.
func (g *Gateway) LockArtifact(ctx domain.Context, binaryID, filesystemID int) (bool, error) {
	var acquired bool
	err := g.withRetry(ctx, "postgres.LockArtifact", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "FSDownloadLock")
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

		var lastReport time.Time
		err = tx.QueryRow(ctx,
			`SELECT lastReport FROM "FSDownloadLock" WHERE binaryID = $1 AND filesystemID = $2 FOR UPDATE`,
			binaryID, filesystemID).Scan(&lastReport)
		switch {
		case err == pgx.ErrNoRows:
			if _, err := tx.Exec(ctx,
				`INSERT INTO "FSDownloadLock" (binaryID, filesystemID, lastReport) VALUES ($1, $2, NOW())`,
				binaryID, filesystemID); err != nil {
				return err
			}
			acquired = true
		case err != nil:
			return err
		case time.Since(lastReport) > DownloadTimeout:
			if _, err := tx.Exec(ctx,
				`UPDATE "FSDownloadLock" SET lastReport = NOW() WHERE binaryID = $1 AND filesystemID = $2`,
				binaryID, filesystemID); err != nil {
				return err
			}
			acquired = true
		default:
			acquired = false
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		committed = true
		return nil
	})
	return acquired, err
}

// RefreshArtifactLock extends a held lock's staleness deadline; called
// by the download refresher task every DOWNLOAD_REFRESH seconds.
func (g *Gateway) RefreshArtifactLock(ctx domain.Context, binaryID, filesystemID int) error {
	return g.withRetry(ctx, "postgres.RefreshArtifactLock", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "FSDownloadLock")
		defer span.End()
		_, err := g.Pool.Exec(ctx,
			`UPDATE "FSDownloadLock" SET lastReport = NOW() WHERE binaryID = $1 AND filesystemID = $2`,
			binaryID, filesystemID)
		return err
	})
}

// UnlockArtifact releases a held download lock.
func (g *Gateway) UnlockArtifact(ctx domain.Context, binaryID, filesystemID int) error {
	return g.withRetry(ctx, "postgres.UnlockArtifact", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "DELETE", "FSDownloadLock")
		defer span.End()
		_, err := g.Pool.Exec(ctx,
			`DELETE FROM "FSDownloadLock" WHERE binaryID = $1 AND filesystemID = $2`, binaryID, filesystemID)
		return err
	})
}
