package postgres

import (
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// JobsForSimulation loads every not-started job belonging to an
// experiment linked to gridQueueID in one shot, grounded on
// database.h's db_fetch_jobs_for_simulation: simulation mode pre-loads
// its whole job set once at sign-on and never re-queries the DB for more
// (original_source/src/simulate.cc's simulate_sign_on).
func (g *Gateway) JobsForSimulation(ctx domain.Context, gridQueueID int) ([]domain.Job, error) {
	var out []domain.Job
	err := g.withRetry(ctx, "postgres.JobsForSimulation", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "ExperimentResults")
		defer span.End()
		rows, err := g.Pool.Query(ctx, `
			SELECT r.idJob, r.SolverConfig_idSolverConfig, r.Experiment_idExperiment,
			       r.Instances_idInstance, r.run, r.seed, r.priority,
			       r.CPUTimeLimit, r.wallClockTimeLimit, r.memoryLimit, r.stackSizeLimit,
			       r.outputSizeLimitFirst, r.outputSizeLimitLast
			FROM "ExperimentResults" r
			JOIN "ExperimentHasGridQueue" eg ON eg.Experiment_idExperiment = r.Experiment_idExperiment
			WHERE eg.GridQueue_idgridQueue = $1 AND r.status = $2
			ORDER BY r.idJob`, gridQueueID, domain.StatusNotStarted)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var j domain.Job
			if err := rows.Scan(&j.ID, &j.SolverConfigID, &j.ExperimentID, &j.InstanceID,
				&j.Run, &j.Seed, &j.Priority,
				&j.CPUTimeLimit, &j.WallClockTimeLimit, &j.MemoryLimit, &j.StackSizeLimit,
				&j.OutputSizeLimitFirst, &j.OutputSizeLimitLast); err != nil {
				return err
			}
			j.Status = domain.StatusNotStarted
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}
