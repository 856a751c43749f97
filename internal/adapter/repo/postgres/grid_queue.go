package postgres

import (
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// GridQueueByName resolves a grid queue by its configured name, grounded
// on database.h's QUERY_GRID_QUEUE (the original looks up the row once
// at startup to validate host homogeneity and to learn its own id).
func (g *Gateway) GridQueueByName(ctx domain.Context, name string) (domain.GridQueue, error) {
	var q domain.GridQueue
	err := g.withRetry(ctx, "postgres.GridQueueByName", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "GridQueue")
		defer span.End()
		return g.Pool.QueryRow(ctx, `
			SELECT idgridQueue, name, COALESCE(location, ''), COALESCE(numCPUs, 0),
			       COALESCE(numCores, 0), COALESCE(cpuModel, ''), COALESCE(description, '')
			FROM "GridQueue" WHERE name = $1`, name,
		).Scan(&q.ID, &q.Name, &q.Location, &q.NumCPUs, &q.NumCores, &q.CPUModel, &q.Description)
	})
	return q, err
}
