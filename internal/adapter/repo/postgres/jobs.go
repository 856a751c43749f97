package postgres

import (
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// FetchAndLockJob runs the five-step claim transaction from spec §4.3,
// grounded on database.h's LIMIT_QUERY/SELECT_ID_QUERY/SELECT_FOR_UPDATE/
// LOCK_JOB sequence: a random offset into the experiment's unprocessed
// jobs, a row lock, and a conditional UPDATE. The claiming UPDATE also
// stamps computeQueue/computeNode/computeNodeIP so the row records which
// worker owns it. Returns domain.ErrClaimRace (not a hard error) when a
// competitor won the row first.
func (g *Gateway) FetchAndLockJob(ctx domain.Context, experimentID, clientID, gridQueueID int, computeNode, computeNodeIP string) (domain.Job, error) {
	var job domain.Job
	err := g.withRetry(ctx, "postgres.FetchAndLockJob", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "ExperimentResults")
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

		var countUnprocessed int
		if err := tx.QueryRow(ctx,
			`SELECT countUnprocessedJobs FROM "Experiment" WHERE idExperiment = $1`,
			experimentID).Scan(&countUnprocessed); err != nil {
			return err
		}
		if countUnprocessed <= 0 {
			job = domain.NoJob
			return tx.Commit(ctx)
		}
		offset := rand.Intn(countUnprocessed)

		var jobID int
		err = tx.QueryRow(ctx, `
			SELECT idJob FROM "ExperimentResults"
			WHERE Experiment_idExperiment = $1 AND status = $2 AND priority >= 0
			ORDER BY idJob
			OFFSET $3 LIMIT 1`,
			experimentID, domain.StatusNotStarted, offset).Scan(&jobID)
		if err == pgx.ErrNoRows {
			job = domain.NoJob
			return tx.Commit(ctx)
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			SELECT idJob, SolverConfig_idSolverConfig, Experiment_idExperiment,
			       Instances_idInstance, run, seed, priority,
			       CPUTimeLimit, wallClockTimeLimit, memoryLimit, stackSizeLimit,
			       outputSizeLimitFirst, outputSizeLimitLast
			FROM "ExperimentResults"
			WHERE idJob = $1 AND status = $2
			FOR UPDATE`,
			jobID, domain.StatusNotStarted,
		).Scan(&job.ID, &job.SolverConfigID, &job.ExperimentID, &job.InstanceID,
			&job.Run, &job.Seed, &job.Priority,
			&job.CPUTimeLimit, &job.WallClockTimeLimit, &job.MemoryLimit, &job.StackSizeLimit,
			&job.OutputSizeLimitFirst, &job.OutputSizeLimitLast)
		if err == pgx.ErrNoRows {
			// Lost the race between the offset read and the row lock.
			job = domain.NoJob
			if cerr := tx.Commit(ctx); cerr != nil {
				return cerr
			}
			return domain.ErrClaimRace
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE "ExperimentResults"
			SET status = $1, startTime = NOW(), computeQueue = $2,
			    computeNode = $3, computeNodeIP = $4, Client_idClient = $5
			WHERE idJob = $6`,
			domain.StatusRunning, gridQueueID, computeNode, computeNodeIP, clientID, job.ID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		committed = true
		job.Status = domain.StatusRunning
		job.ComputeQueue = gridQueueID
		job.ComputeNode = computeNode
		job.ComputeNodeIP = computeNodeIP
		return nil
	})
	return job, err
}

// ResetJob reverts a claimed-but-abandoned job back to StatusNotStarted,
// clearing its owner fields (used on worker crash recovery and on
// kill_client hard, spec §5).
func (g *Gateway) ResetJob(ctx domain.Context, jobID int) error {
	return g.withRetry(ctx, "postgres.ResetJob", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "ExperimentResults")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `
			UPDATE "ExperimentResults"
			SET status = $1, Client_idClient = NULL, startTime = NULL
			WHERE idJob = $2`,
			domain.StatusNotStarted, jobID)
		return err
	})
}

// UpdateJob persists a completed or failed job's result fields in one
// statement, grounded on database.h's QUERY_UPDATE_JOB. Output blobs are
// passed as parameterized []byte, never escaped-and-substituted by hand
// (SPEC_FULL.md §9 "manual pointer bookkeeping" note).
func (g *Gateway) UpdateJob(ctx domain.Context, job domain.Job) error {
	return g.withRetry(ctx, "postgres.UpdateJob", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "UPDATE", "ExperimentResults")
		defer span.End()
		_, err := g.Pool.Exec(ctx, `
			UPDATE "ExperimentResults"
			SET status = $1, resultTime = $2, resultCode = $3,
			    solverExitCode = $4, watcherExitCode = $5, verifierExitCode = $6,
			    watcherOutput = $7, launcherOutput = $8,
			    solverOutput = $9, verifierOutput = $10,
			    computeQueue = $11, computeNode = $12, computeNodeIP = $13
			WHERE idJob = $14`,
			job.Status, job.ResultTime, job.ResultCode,
			job.SolverExitCode, job.WatcherExitCode, job.VerifierExitCode,
			job.WatcherOutput, job.LauncherOutput,
			job.SolverOutput, job.VerifierOutput,
			job.ComputeQueue, job.ComputeNode, job.ComputeNodeIP,
			job.ID)
		if err != nil {
			return fmt.Errorf("%w", err)
		}
		return nil
	})
}

// SolverConfigParams returns the ordered parameter vector for a solver
// configuration (database.h's QUERY_SOLVER_CONFIG_PARAMS).
func (g *Gateway) SolverConfigParams(ctx domain.Context, solverConfigID int) ([]domain.Parameter, error) {
	var out []domain.Parameter
	err := g.withRetry(ctx, "postgres.SolverConfigParams", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "Parameter")
		defer span.End()
		rows, err := g.Pool.Query(ctx, `
			SELECT idParameter, name, prefix, hasValue, defaultValue, "order", space, attachToPrevious, value
			FROM "Parameter"
			WHERE SolverConfig_idSolverConfig = $1
			ORDER BY "order"`, solverConfigID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var p domain.Parameter
			if err := rows.Scan(&p.ID, &p.Name, &p.Prefix, &p.HasValue, &p.Default,
				&p.Order, &p.Space, &p.AttachToPrevious, &p.Value); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// Solver resolves the SolverBinary metadata a job's solver config
// references (database.h's QUERY_SOLVER + QUERY_SOLVER_BINARY).
func (g *Gateway) Solver(ctx domain.Context, solverConfigID int) (domain.SolverBinary, error) {
	var s domain.SolverBinary
	err := g.withRetry(ctx, "postgres.Solver", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "SolverBinary")
		defer span.End()
		return g.Pool.QueryRow(ctx, `
			SELECT sb.idSolverBinary, sb.solver_name, sb.binaryName, sb.md5, sb.runCommand, sb.runPath
			FROM "SolverConfig" sc
			JOIN "SolverBinary" sb ON sb.idSolverBinary = sc.SolverBinary_idSolverBinary
			WHERE sc.idSolverConfig = $1`, solverConfigID,
		).Scan(&s.ID, &s.Name, &s.BinaryName, &s.MD5, &s.RunCommand, &s.RunPath)
	})
	return s, err
}

// Instance resolves an Instance's artifact metadata (database.h's
// QUERY_INSTANCE).
func (g *Gateway) Instance(ctx domain.Context, instanceID int) (domain.Instance, error) {
	var inst domain.Instance
	err := g.withRetry(ctx, "postgres.Instance", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "Instance")
		defer span.End()
		return g.Pool.QueryRow(ctx,
			`SELECT idInstance, name, md5 FROM "Instance" WHERE idInstance = $1`,
			instanceID,
		).Scan(&inst.ID, &inst.Name, &inst.MD5)
	})
	return inst, err
}

// StatusDescription looks up a human-readable label for a job status
// code, grounded on database.h's QUERY_STATUS_CODE_DESCRIPTION (dropped
// by spec.md's distillation, restored here — SPEC_FULL.md §3).
func (g *Gateway) StatusDescription(ctx domain.Context, code int) (string, error) {
	var desc string
	err := g.withRetry(ctx, "postgres.StatusDescription", func(ctx domain.Context) error {
		ctx, span := g.span(ctx, "SELECT", "StatusCodes")
		defer span.End()
		err := g.Pool.QueryRow(ctx,
			`SELECT description FROM "StatusCodes" WHERE statusCode = $1`, code,
		).Scan(&desc)
		if err == pgx.ErrNoRows {
			desc = "unknown status"
			return nil
		}
		return err
	})
	return desc, err
}
