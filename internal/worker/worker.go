// Package worker groups what were C file-scope statics in
// original_source/src/client.cc — the primary connection, the worker-slot
// array, the downloading_job marker, t_started_last_job — into an
// explicit Worker object and runs the Main Loop described in spec §4.6.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/edacc-worker/internal/adapter/observability"
	"github.com/fairyhunter13/edacc-worker/internal/artifactstore"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/executor"
	"github.com/fairyhunter13/edacc-worker/internal/jobserverclient"
	"github.com/fairyhunter13/edacc-worker/internal/scheduler"
)

// MessageUpdateInterval is spec §4.6's MESSAGE_UPDATE_INTERVAL. Run does
// not consult it: the Main Loop drains the control queue on every
// iteration.
const MessageUpdateInterval = 10 * time.Second

// activeSlot holds the executor.Slot of an occupied worker slot until
// Finish is called once its watchdog exits.
type activeSlot struct {
	slot *executor.Slot
}

// Worker runs one worker process's full lifecycle: sign on, loop slots,
// drain the control channel, sign off. Fields replace the original's
// file-scope statics (SPEC_FULL.md §9 "Global state → explicit Worker
// object").
type Worker struct {
	Methods     domain.Methods
	ClientID    int
	GridQueueID int
	NumSlots    int

	Scheduler     *scheduler.Scheduler
	Executor      *executor.Executor
	SolverStore   *artifactstore.Store
	InstanceStore *artifactstore.Store
	Control       domain.CommandSource

	WaitJobsTime time.Duration
	Backoff      *executor.IdleBackoff
	ExpIDs       []int // job-server restricted set; nil means "ask the DB for all"

	// JobServer is optional (spec §6's "Optional job-server mode"); when
	// set, the Main Loop refreshes ExpIDs from it each iteration instead
	// of leaving every experiment on the grid queue eligible. A lookup
	// failure just keeps the previous ExpIDs, since FetchAndLockJob always
	// re-validates the candidate against the database regardless of
	// which list it came from.
	JobServer *jobserverclient.Client

	slots           []*activeSlot
	pending         map[int]artifacts
	downloadingJob  int64 // atomic; 0 means "not downloading"
	tStartedLastJob time.Time
	draining        bool // set by kill_client soft: stop claiming, exit once slots drain
}

type artifacts struct {
	solver       domain.SolverBinary
	params       []domain.Parameter
	instancePath string
}

// New constructs a Worker with empty slots, wiring the Scheduler's Fetch
// callback to the artifact-resolution step (spec §4.3 Step C).
func New(w *Worker) *Worker {
	w.slots = make([]*activeSlot, w.NumSlots)
	w.pending = make(map[int]artifacts)
	w.tStartedLastJob = time.Now()
	w.Scheduler.Fetch = w.fetchArtifacts
	return w
}

func (w *Worker) setDownloading(jobID int) { atomic.StoreInt64(&w.downloadingJob, int64(jobID)) }

// DownloadingJob reports the job id currently being downloaded, or 0.
func (w *Worker) DownloadingJob() int { return int(atomic.LoadInt64(&w.downloadingJob)) }

func (w *Worker) fetchArtifacts(ctx context.Context, job domain.Job) error {
	w.setDownloading(job.ID)
	defer w.setDownloading(0)

	solver, err := w.Methods.Solver(ctx, job.SolverConfigID)
	if err != nil {
		return fmt.Errorf("op=worker.fetchArtifacts: %w", err)
	}
	params, err := w.Methods.SolverConfigParams(ctx, job.SolverConfigID)
	if err != nil {
		return fmt.Errorf("op=worker.fetchArtifacts: %w", err)
	}
	inst, err := w.Methods.Instance(ctx, job.InstanceID)
	if err != nil {
		return fmt.Errorf("op=worker.fetchArtifacts: %w", err)
	}

	solverPath, err := w.SolverStore.Acquire(ctx, artifactstore.KindSolver, solver.ID, solver.MD5, solver.BinaryName)
	if err != nil {
		return fmt.Errorf("op=worker.fetchArtifacts: %w", err)
	}
	solver.RunPath = solverPath

	instPath, err := w.InstanceStore.Acquire(ctx, artifactstore.KindInstance, inst.ID, inst.MD5, inst.Name)
	if err != nil {
		return fmt.Errorf("op=worker.fetchArtifacts: %w", err)
	}

	w.pending[job.ID] = artifacts{solver: solver, params: params, instancePath: instPath}
	return nil
}

// Run executes the Main Loop until ctx is cancelled or the idle-exit
// window elapses, then signs off and returns. Grounded on client.cc's
// main() loop body.
func (w *Worker) Run(ctx context.Context, hostDescription string) error {
	for {
		if ctx.Err() != nil {
			return w.drainAndExit(ctx)
		}

		w.refreshExpIDs()

		var startedOne, keepGoing bool
		if !w.draining {
			startedOne, keepGoing = w.fillIdleSlots(ctx, hostDescription)
		}
		if startedOne {
			w.Backoff.Reset()
			w.tStartedLastJob = time.Now()
		}

		if w.draining && !w.anySlotUsed() {
			slog.Info("kill_client soft: all outstanding jobs finished, shutting down")
			return w.drainAndExit(ctx)
		}
		if !w.draining && !w.anySlotUsed() && time.Since(w.tStartedLastJob) > w.WaitJobsTime {
			slog.Info("idle-exit window elapsed with no running jobs, shutting down")
			return w.drainAndExit(ctx)
		}

		w.reapFinishedSlots(ctx)
		w.drainControlQueue(ctx)

		var interval time.Duration
		switch {
		case startedOne || keepGoing:
			interval = 0
		case w.draining:
			interval = w.Backoff.Current()
		default:
			interval = w.Backoff.Next()
		}
		observability.CheckJobsIntervalMS.Set(float64(interval.Milliseconds()))
		select {
		case <-ctx.Done():
			return w.drainAndExit(ctx)
		case <-time.After(interval):
		}
	}
}

// fillIdleSlots attempts scheduler.StartJob for every empty slot.
// keepGoing reports whether at least one empty slot still exists so the
// loop retries immediately instead of sleeping (the teacher's
// break-on-first-miss shape from spec §4.6's pseudocode).
func (w *Worker) fillIdleSlots(ctx context.Context, hostDescription string) (startedOne, keepGoing bool) {
	for i := range w.slots {
		if w.slots[i] != nil {
			continue
		}
		job, ok, err := w.Scheduler.StartJob(ctx, w.ExpIDs)
		if err != nil {
			slog.Error("scheduler.StartJob failed", slog.Any("error", err))
			return startedOne, true
		}
		if !ok {
			return startedOne, true
		}
		observability.JobsClaimedTotal.WithLabelValues(strconv.Itoa(job.ExperimentID)).Inc()

		art := w.pending[job.ID]
		delete(w.pending, job.ID)
		job.InstanceFileName = art.instancePath
		slot, err := w.Executor.Launch(ctx, job, art.solver, art.instancePath, art.params, hostDescription)
		if err != nil {
			slog.Error("executor.Launch failed", slog.Any("error", err), slog.Int("job_id", job.ID))
			_ = w.Methods.ResetJob(ctx, job.ID)
			_ = w.Methods.DecrementCoreCount(ctx, job.ExperimentID, w.GridQueueID)
			continue
		}
		w.slots[i] = &activeSlot{slot: slot}
		observability.JobsRunning.Inc()
		startedOne = true
	}
	return startedOne, false
}

// refreshExpIDs re-queries the optional job-server for the set of
// experiment ids this grid queue is allowed to pull from. A disabled or
// failing job-server leaves ExpIDs untouched, which keeps the scheduler
// falling back to "ask the DB for every experiment on this queue".
func (w *Worker) refreshExpIDs() {
	if w.JobServer == nil {
		return
	}
	ids, err := w.JobServer.PossibleExperimentIDs(w.GridQueueID)
	if err != nil {
		slog.Warn("job-server lookup failed, keeping previous experiment set", slog.Any("error", err))
		return
	}
	w.ExpIDs = ids
}

func (w *Worker) anySlotUsed() bool {
	for _, s := range w.slots {
		if s != nil {
			return true
		}
	}
	return false
}

// reapFinishedSlots polls every active slot non-blockingly (spec §5's
// WNOHANG equivalent) and finalizes any whose watchdog has exited.
func (w *Worker) reapFinishedSlots(ctx context.Context) {
	for i, s := range w.slots {
		if s == nil {
			continue
		}
		comp, done := executor.Poll(s.slot)
		if !done {
			continue
		}
		started := s.slot.Job.StartTime
		job, err := w.Executor.Finish(ctx, s.slot, comp)
		if err != nil {
			slog.Error("executor.Finish failed", slog.Any("error", err), slog.Int("job_id", s.slot.Job.ID))
		} else {
			slog.Info("job finished", slog.Int("job_id", job.ID), slog.Int("status", job.Status))
		}
		observability.JobsFinishedTotal.WithLabelValues(strconv.Itoa(job.Status)).Inc()
		observability.JobsRunning.Dec()
		if !started.IsZero() {
			observability.JobDuration.Observe(time.Since(started).Seconds())
		}
		w.slots[i] = nil
	}
}

// drainControlQueue applies at most one pass of queued control commands
// per Main Loop iteration (spec §4.5).
func (w *Worker) drainControlQueue(ctx context.Context) {
	for {
		cmd, ok := w.Control.Next()
		if !ok {
			return
		}
		observability.ControlCommandsTotal.WithLabelValues(commandKindLabel(cmd.Kind)).Inc()
		switch cmd.Kind {
		case domain.CommandKillJob:
			w.killJob(ctx, cmd.JobID)
		case domain.CommandKillClientSoft:
			slog.Info("kill_client soft received: letting outstanding jobs finish, then exiting")
			w.draining = true
		case domain.CommandKillClientHard:
			slog.Warn("kill_client hard received: killing all children immediately")
			w.killAllHard(ctx)
		case domain.CommandWaitTime:
			w.WaitJobsTime = time.Duration(cmd.WaitTime) * time.Second
		}
	}
}

func commandKindLabel(k domain.CommandKind) string {
	switch k {
	case domain.CommandKillJob:
		return "kill_job"
	case domain.CommandKillClientSoft:
		return "kill_client_soft"
	case domain.CommandKillClientHard:
		return "kill_client_hard"
	case domain.CommandWaitTime:
		return "wait_time"
	default:
		return "unknown"
	}
}

func (w *Worker) killJob(ctx context.Context, jobID int) {
	for i, s := range w.slots {
		if s == nil || s.slot.Job.ID != jobID {
			continue
		}
		if s.slot.Cmd.Process != nil {
			_ = executor.KillTree(s.slot.Cmd.Process.Pid, 5*time.Second)
		}
		job := s.slot.Job
		job.Status = domain.StatusClientError
		job.ResultCode = domain.ResultUnknown
		_ = w.Methods.UpdateJob(ctx, job)
		_ = w.Methods.DecrementCoreCount(ctx, job.ExperimentID, w.GridQueueID)
		w.slots[i] = nil
	}
}

// killAllHard implements spec §5's kill_client hard contract: kill every
// child, reset the in-flight download job if any, persist -5 on every
// active slot, then let drainAndExit delete the Client row and exit.
func (w *Worker) killAllHard(ctx context.Context) {
	if jobID := w.DownloadingJob(); jobID != 0 {
		_ = w.Methods.ResetJob(ctx, jobID)
		w.setDownloading(0)
	}
	for i, s := range w.slots {
		if s == nil {
			continue
		}
		if s.slot.Cmd.Process != nil {
			_ = executor.KillTree(s.slot.Cmd.Process.Pid, 5*time.Second)
		}
		job := s.slot.Job
		job.Status = domain.StatusClientError
		job.ResultCode = domain.ResultUnknown
		_ = w.Methods.UpdateJob(ctx, job)
		_ = w.Methods.DecrementCoreCount(ctx, job.ExperimentID, w.GridQueueID)
		w.slots[i] = nil
	}
}

// drainAndExit persists -5 for any still-running job, resets an in-flight
// download, signs off, and returns — the Go equivalent of exit_client.
func (w *Worker) drainAndExit(ctx context.Context) error {
	if jobID := w.DownloadingJob(); jobID != 0 {
		_ = w.Methods.ResetJob(context.Background(), jobID)
		w.setDownloading(0)
	}
	for i, s := range w.slots {
		if s == nil {
			continue
		}
		job := s.slot.Job
		job.Status = domain.StatusClientError
		job.ResultCode = domain.ResultUnknown
		_ = w.Methods.UpdateJob(context.Background(), job)
		_ = w.Methods.DecrementCoreCount(context.Background(), job.ExperimentID, w.GridQueueID)
		w.slots[i] = nil
	}
	return w.Methods.SignOff(context.Background(), w.ClientID)
}

// CheckHomogeneity implements spec §4.6's homogeneity guard: logs a
// warning (and returns an error unless allowInhomogeneous) if the
// measured host's cores or CPU model differ from the grid queue record.
func CheckHomogeneity(host domain.HostInfo, queue domain.GridQueue, allowInhomogeneous bool) error {
	mismatch := (queue.NumCores != 0 && queue.NumCores != host.NumCores) ||
		(queue.CPUModel != "" && queue.CPUModel != host.CPUModel)
	if !mismatch {
		return nil
	}
	slog.Warn("host does not match grid queue's recorded hardware",
		slog.Int("host_num_cores", host.NumCores), slog.Int("queue_num_cores", queue.NumCores),
		slog.String("host_cpu_model", host.CPUModel), slog.String("queue_cpu_model", queue.CPUModel))
	if allowInhomogeneous {
		return nil
	}
	return fmt.Errorf("%w: host hardware does not match grid queue %q (use -h to override)",
		domain.ErrConfig, queue.Name)
}
