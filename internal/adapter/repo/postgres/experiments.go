package postgres

import (
	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/scheduler"
)

// ChooseExperiment delegates to the pure diff() implementation in
// internal/scheduler so the formula has a single source of truth shared
// by both the live gateway and any future caller.
func (g *Gateway) ChooseExperiment(candidates []domain.JobCandidate) (int, bool) {
	return scheduler.Choose(candidates)
}

// PossibleExperiments returns every active experiment with unprocessed
// jobs linked to gridQueueID, together with the fleet-wide core count
// currently claimed against it (database.h's QUERY_POSSIBLE_EXPERIMENTS
// joined with QUERY_EXPERIMENT_CPU_COUNT). When expIDs is non-empty (the
// job-server supplied a restricted set, spec §6), the result is filtered
// to those ids (QUERY_POSSIBLE_EXPERIMENTS_BY_EXPIDS).
func (g *Gateway) PossibleExperiments(ctx domain.Context, gridQueueID int, expIDs []int) ([]domain.JobCandidate, error) {
	var out []domain.JobCandidate
	err := g.withRetry(ctx, "postgres.PossibleExperiments", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "Experiment")
		defer span.End()

		const q = `
			SELECT e.idExperiment, e.name, e.priority,
			       COALESCE(ehc.totalCores, 0) AS cpu
			FROM "Experiment" e
			JOIN "ExperimentHasGridQueue" eg ON eg.Experiment_idExperiment = e.idExperiment
			LEFT JOIN (
				SELECT Experiment_idExperiment, SUM(numCores) AS totalCores
				FROM "ExperimentHasClient"
				GROUP BY Experiment_idExperiment
			) ehc ON ehc.Experiment_idExperiment = e.idExperiment
			WHERE eg.GridQueue_idgridQueue = $1
			  AND e.active = TRUE
			  AND e.countUnprocessedJobs > 0
			  AND ($2::int[] IS NULL OR e.idExperiment = ANY($2))`

		var expFilter interface{}
		if len(expIDs) > 0 {
			expFilter = expIDs
		}

		rows, err := g.Pool.Query(ctx, q, gridQueueID, expFilter)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			var c domain.JobCandidate
			if err := rows.Scan(&c.Experiment.ID, &c.Experiment.Name, &c.Experiment.Priority, &c.CPUCount); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// IncrementCoreCount and DecrementCoreCount maintain the per-experiment
// claimed-core counter (database.h's QUERY_UPDATE_CORE_COUNT /
// QUERY_DECREMENT_CORE_COUNT, an upsert-style "ON DUPLICATE KEY UPDATE").
func (g *Gateway) IncrementCoreCount(ctx domain.Context, experimentID, gridQueueID int) error {
	return g.withRetry(ctx, "postgres.IncrementCoreCount", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "ExperimentHasClient")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `
			INSERT INTO "ExperimentHasClient" (Experiment_idExperiment, GridQueue_idgridQueue, numCores)
			VALUES ($1, $2, 1)
			ON CONFLICT (Experiment_idExperiment, GridQueue_idgridQueue)
			DO UPDATE SET numCores = "ExperimentHasClient".numCores + 1`,
			experimentID, gridQueueID)
		return err
	})
}

func (g *Gateway) DecrementCoreCount(ctx domain.Context, experimentID, gridQueueID int) error {
	return g.withRetry(ctx, "postgres.DecrementCoreCount", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "ExperimentHasClient")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `
			UPDATE "ExperimentHasClient"
			SET numCores = GREATEST(numCores - 1, 0)
			WHERE Experiment_idExperiment = $1 AND GridQueue_idgridQueue = $2`,
			experimentID, gridQueueID)
		return err
	})
}
