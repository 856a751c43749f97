package worker

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fairyhunter13/edacc-worker/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// Simulated wraps a live Gateway for solver and instance metadata,
// artifact locks, grid queue info and parameter vectors while replacing
// the job-scheduling operations with in-memory bookkeeping. Grounded on
// original_source/src/simulate.cc's initialize_simulation, which
// substitutes exactly five function pointers (sign_on, sign_off,
// choose_experiment, db_fetch_job, db_update_job) plus
// increment_core_count; this type additionally stubs
// PossibleExperiments, ResetJob and DecrementCoreCount, and everything
// else still goes to the real database.
type Simulated struct {
	*postgres.Gateway

	mu          sync.Mutex
	jobs        []domain.Job
	next        int
	statusCount map[int]int
}

// NewSimulated pre-loads every claimable job for gridQueueID from the
// live database once, matching simulate_sign_on's single
// db_fetch_jobs_for_simulation call.
func NewSimulated(ctx domain.Context, gw *postgres.Gateway, gridQueueID int) (*Simulated, error) {
	slog.Info("initializing simulation mode: experiments are only simulated, no data is written to the db")
	jobs, err := gw.JobsForSimulation(ctx, gridQueueID)
	if err != nil {
		return nil, fmt.Errorf("op=worker.NewSimulated: %w", err)
	}
	slog.Info("fetched jobs for simulation", slog.Int("grid_queue_id", gridQueueID), slog.Int("count", len(jobs)))
	return &Simulated{
		Gateway:     gw,
		jobs:        jobs,
		statusCount: make(map[int]int),
	}, nil
}

// SignOn never registers a real Client row; it returns a synthetic id so
// downstream log lines have something stable to print.
func (s *Simulated) SignOn(ctx domain.Context, host domain.HostInfo, gridQueueID int) (int, error) {
	return -1, nil
}

// SignOff is a no-op: there is no Client row to remove.
func (s *Simulated) SignOff(ctx domain.Context, clientID int) error { return nil }

// PossibleExperiments returns a single placeholder candidate so the
// scheduler's experiment choice always succeeds (see ChooseExperiment);
// FetchAndLockJob then ignores the chosen experiment id.
func (s *Simulated) PossibleExperiments(ctx domain.Context, gridQueueID int, expIDs []int) ([]domain.JobCandidate, error) {
	return []domain.JobCandidate{{}}, nil
}

// ChooseExperiment always reports success, matching
// simulate_choose_experiment's unconditional `return true`: the
// pre-loaded job queue, not the fair-share formula, decides what runs
// next.
func (s *Simulated) ChooseExperiment(candidates []domain.JobCandidate) (int, bool) {
	return 0, true
}

// FetchAndLockJob ignores experimentID, clientID, and the claiming
// worker's location and simply hands out the next pre-loaded job,
// matching simulate_db_fetch_job. Returns domain.NoJob once the
// pre-loaded queue is drained.
func (s *Simulated) FetchAndLockJob(ctx domain.Context, experimentID, clientID, gridQueueID int, computeNode, computeNodeIP string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.jobs) {
		return domain.NoJob, nil
	}
	job := s.jobs[s.next]
	s.next++
	job.Status = domain.StatusRunning
	job.ComputeQueue = gridQueueID
	job.ComputeNode = computeNode
	job.ComputeNodeIP = computeNodeIP
	return job, nil
}

// UpdateJob records the final status in an in-memory tally instead of
// writing to the database, matching simulate_db_update_job.
func (s *Simulated) UpdateJob(ctx domain.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Status != 0 {
		s.statusCount[job.Status]++
	}
	return nil
}

// ResetJob is a no-op: an abandoned simulated job is simply never
// retried, since there is no persisted state to revert.
func (s *Simulated) ResetJob(ctx domain.Context, jobID int) error { return nil }

// IncrementCoreCount and DecrementCoreCount are no-ops, matching
// simulate_increment_core_count; the fair-share core counter only
// matters to the real scheduler, which simulation mode bypasses.
func (s *Simulated) IncrementCoreCount(ctx domain.Context, experimentID int, gridQueueID int) error {
	return nil
}

func (s *Simulated) DecrementCoreCount(ctx domain.Context, experimentID int, gridQueueID int) error {
	return nil
}

// Summary renders the final per-status tally, matching
// simulate_exit_client's "Summary:" log block. descriptionOf resolves a
// human-readable label via the live Gateway's StatusDescription.
func (s *Simulated) Summary(ctx domain.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := []string{"Summary:", "--------", "", "status codes:"}
	for code, count := range s.statusCount {
		desc, err := s.Gateway.StatusDescription(ctx, code)
		if err != nil || desc == "" {
			desc = "WARNING: status code not in db"
		}
		lines = append(lines, fmt.Sprintf("%s (%d): %d", desc, code, count))
	}
	return lines
}
