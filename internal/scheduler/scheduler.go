// Package scheduler implements the fair-share experiment selector and the
// job-claim orchestration described in spec §4.3: Step A picks an
// experiment by maximizing the diff() formula; Step B claims one job of
// that experiment through the DB Gateway's transactional primitive; Step
// C materializes its artifacts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// Choose applies the diff() formula from spec §4.3 over candidates and
// returns the experiment id maximizing it. Ties are broken by iteration
// order (first candidate seen wins a tie), matching the original's
// "any e* maximizing diff" contract.
func Choose(candidates []domain.JobCandidate) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}

	var priorityTotal, cpuTotal float64
	for _, c := range candidates {
		priorityTotal += c.Experiment.Priority
		cpuTotal += float64(c.CPUCount)
	}

	bestID := 0
	bestDiff := 0.0
	haveBest := false
	for _, c := range candidates {
		diff := diffFor(c, priorityTotal, cpuTotal)
		if !haveBest || diff > bestDiff {
			bestDiff = diff
			bestID = c.Experiment.ID
			haveBest = true
		}
	}
	return bestID, haveBest
}

func diffFor(c domain.JobCandidate, priorityTotal, cpuTotal float64) float64 {
	cpu := float64(c.CPUCount)
	switch {
	case priorityTotal > 0 && cpuTotal > 0:
		return c.Experiment.Priority/priorityTotal - cpu/cpuTotal
	case priorityTotal == 0 && cpuTotal > 0:
		if cpu == 0 {
			// Matches client.cc's choose_experiment: sum_cpus/0 is a C
			// double divide-by-zero, which yields +Inf and so makes an
			// experiment that has never run an unconditional winner
			// over the fleet (SPEC_FULL.md §9).
			return math.Inf(1)
		}
		return cpuTotal / cpu
	case cpuTotal == 0 && priorityTotal > 0:
		return c.Experiment.Priority / priorityTotal
	default:
		return 0
	}
}

// Scheduler orchestrates the three steps of spec §4.3 for one idle
// worker slot: choose an experiment, claim a job, materialize its
// artifacts via the supplied fetch callback (the Artifact Store, wired
// in by internal/worker to avoid an import cycle).
type Scheduler struct {
	Methods     domain.Methods
	GridQueueID int
	ClientID    int
	// ComputeNode/ComputeNodeIP identify this worker's host for the
	// claim transaction's computeNode/computeNodeIP columns (spec §4.3
	// step 4), so fleet operators can see which node owns a running job.
	ComputeNode   string
	ComputeNodeIP string
	// Fetch materializes the job's solver and instance artifacts and sets
	// the worker's downloading-job marker while it runs; supplied by
	// internal/worker. StartJob increments the core counter before
	// calling it.
	Fetch func(ctx context.Context, job domain.Job) error
}

// StartJob attempts to fill one idle slot. It returns ok=false (with a
// nil error) when no eligible experiment or job exists — the Main Loop
// treats this as a reason to back off, not a failure.
func (s *Scheduler) StartJob(ctx context.Context, expIDs []int) (domain.Job, bool, error) {
	candidates, err := s.Methods.PossibleExperiments(ctx, s.GridQueueID, expIDs)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=scheduler.StartJob: %w", err)
	}
	expID, ok := Choose(candidates)
	if !ok {
		return domain.Job{}, false, nil
	}

	job, err := s.Methods.FetchAndLockJob(ctx, expID, s.ClientID, s.GridQueueID, s.ComputeNode, s.ComputeNodeIP)
	if err != nil {
		if errors.Is(err, domain.ErrClaimRace) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("op=scheduler.StartJob: %w", err)
	}
	if job.ID == 0 {
		return domain.Job{}, false, nil
	}

	if err := s.Methods.IncrementCoreCount(ctx, expID, s.GridQueueID); err != nil {
		return domain.Job{}, false, fmt.Errorf("op=scheduler.StartJob: %w", err)
	}

	if s.Fetch != nil {
		if err := s.Fetch(ctx, job); err != nil {
			_ = s.Methods.DecrementCoreCount(ctx, expID, s.GridQueueID)
			_ = s.Methods.ResetJob(ctx, job.ID)
			return domain.Job{}, false, fmt.Errorf("op=scheduler.StartJob: %w", err)
		}
	}
	return job, true, nil
}
