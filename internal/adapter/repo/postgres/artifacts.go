package postgres

import (
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// ArtifactBlob downloads the raw artifact bytes backing a solver binary
// or instance, grounded on database.h's QUERY_SOLVER_BINARY
// (`binaryArchive` column) and QUERY_INSTANCE_BINARY (`instance`
// column). The bytes may be LZMA-compressed; internal/artifactstore
// detects and decompresses them, this call just returns what the row
// holds.
func (g *Gateway) ArtifactBlob(ctx domain.Context, kind domain.ArtifactKind, id int) ([]byte, error) {
	var blob []byte
	table, column := "Instances", "instance"
	if kind == domain.ArtifactSolver {
		table, column = "SolverBinaries", "binaryArchive"
	}
	err := g.withRetry(ctx, "postgres.ArtifactBlob", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", table)
		defer span.End()
		return g.Pool.QueryRow(ctx,
			`SELECT "`+column+`" FROM "`+table+`" WHERE id`+idColumn(kind)+` = $1`, id,
		).Scan(&blob)
	})
	return blob, err
}

func idColumn(kind domain.ArtifactKind) string {
	if kind == domain.ArtifactSolver {
		return "SolverBinary"
	}
	return "Instance"
}
