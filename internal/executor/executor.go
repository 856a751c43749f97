package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// Slot is one of the worker's numCPUs execution contexts (spec §2/§5): at
// most one job supervised at a time, tracked from fork through result
// persistence.
type Slot struct {
	RunID       string // uuid, for log correlation only (spec.md has no per-slot identity)
	Job         domain.Job
	Cmd         *exec.Cmd
	Done        chan Completion
	WatcherFile string
	SolverFile  string
}

// Executor supervises one claimed job per slot: builds the watchdog and
// solver command lines, forks, reaps non-blockingly, parses the result,
// runs the verifier, and persists the outcome (spec §4.4).
type Executor struct {
	Methods        domain.Methods
	GridQueueID    int
	ResultsDir     string
	WatcherPath    string // absolute path to the runsolver binary
	SolverBasePath string
	Database       string
	VerifierCmd    string // empty means "no verifier configured" (spec §4.4)
	KeepOutput     bool
}

// Launch builds the combined watchdog+solver command line, forks it, and
// returns the Slot tracking it. The launcher output preamble (host
// details, job details, parameter string) is written to job.LauncherOutput
// and persisted immediately (spec §4.4 step 4).
func (e *Executor) Launch(ctx context.Context, job domain.Job, solver domain.SolverBinary, instancePath string, params []domain.Parameter, hostDescription string) (*Slot, error) {
	if err := os.MkdirAll(e.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("op=executor.Launch: %w", err)
	}
	watcherFile, solverFile := outputFilenames(e.ResultsDir, e.Database, job.ID)

	solverCmd := BuildSolverCommand(solver, e.SolverBasePath, instancePath, job, params)
	watchdogCmd := BuildWatchdogCommand(e.WatcherPath, job, watcherFile, solverFile)
	full := watchdogCmd + " " + solverCmd

	var preamble strings.Builder
	fmt.Fprintf(&preamble, "%-30s%s\n", "Host:", hostDescription)
	fmt.Fprintf(&preamble, "%-30s%s\n", "Parameters:", solverCmd)
	fmt.Fprintf(&preamble, "%-30s%d\n", "Seed:", job.Seed)
	fmt.Fprintf(&preamble, "%-30s%d\n", "Instance:", job.InstanceID)
	job.LauncherOutput = preamble.String()
	job.Status = domain.StatusRunning

	if err := e.Methods.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("op=executor.Launch: %w", err)
	}

	cmd, err := Launch(e.SolverBasePath, full)
	if err != nil {
		return nil, err
	}
	slot := &Slot{
		RunID:       uuid.NewString(),
		Job:         job,
		Cmd:         cmd,
		Done:        make(chan Completion, 1),
		WatcherFile: watcherFile,
		SolverFile:  solverFile,
	}
	Reap(cmd, slot.Done)
	return slot, nil
}

// Finish processes one slot's completion: reads the watchdog/solver
// output files, applies the first-match-wins token parser (or the
// watchdog-crash override), runs the verifier when the job finished
// normally, and persists the final result via UpdateJob (spec §4.4
// "Result parsing"/"Verifier"/"Cleanup").
func (e *Executor) Finish(ctx context.Context, slot *Slot, comp Completion) (domain.Job, error) {
	job := slot.Job

	watcherOut := readFileOrEmpty(slot.WatcherFile)
	job.WatcherOutput = watcherOut
	job.SolverOutput = []byte(readFileOrEmpty(slot.SolverFile))
	if code, ok := ChildStatus(watcherOut); ok {
		job.WatcherExitCode = code
	}

	switch {
	case comp.Signal != 0:
		job.Status = WatchdogCrashStatus(comp.Signal)
		job.ResultCode = domain.ResultUnknown
	default:
		res := ParseWatchdogOutput(watcherOut)
		if !res.Matched {
			job.Status = domain.StatusClientError
			job.ResultCode = domain.ResultUnknown
			break
		}
		job.Status = res.Status
		job.ResultCode = res.ResultCode
		job.ResultTime = res.ResultTime
	}

	if job.Status == domain.StatusFinished && e.VerifierCmd != "" {
		instancePath := job.InstanceFileName
		out, exitCode, err := RunVerifier(ctx, e.VerifierCmd, instancePath, slot.SolverFile)
		job.VerifierExitCode = exitCode
		job.VerifierOutput = out
		if err != nil {
			// Verifier failures are local recovery per spec §7: resultCode
			// stays at whatever the watchdog reported (0, "unknown").
			job.VerifierExitCode = -1
		} else if job.ResultCode == domain.ResultUnknown {
			if code, ok := ParseVerifierOutput(out); ok {
				job.ResultCode = code
			}
		}
	}

	cleanupOutputFiles(e.KeepOutput, slot.WatcherFile, slot.SolverFile)

	if err := e.Methods.DecrementCoreCount(ctx, job.ExperimentID, e.GridQueueID); err != nil {
		return job, fmt.Errorf("op=executor.Finish: %w", err)
	}
	if err := e.Methods.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("op=executor.Finish: %w", err)
	}
	return job, nil
}

// Poll returns a slot's completion if its watchdog has already exited,
// without blocking — the Go equivalent of waitpid(..., WNOHANG) (spec
// §4.4/§5): each Slot's Done channel is fed by Reap's own goroutine, so
// checking it never stalls the Main Loop.
func Poll(slot *Slot) (Completion, bool) {
	select {
	case c := <-slot.Done:
		return c, true
	default:
		return Completion{}, false
	}
}

func readFileOrEmpty(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// IdleBackoff implements the check_jobs_interval schedule of spec §4.4:
// starts at initial, doubles on each empty claim attempt, caps at upper,
// and resets to initial after any successful claim.
type IdleBackoff struct {
	initial time.Duration
	upper   time.Duration
	current time.Duration
}

// NewIdleBackoff constructs the back-off tracker with the configured
// initial interval and spec §4.4's fixed upper bound (10000ms), widened
// to initial itself if the caller configured a larger initial value.
func NewIdleBackoff(initial time.Duration) *IdleBackoff {
	upper := 10 * time.Second
	if initial > upper {
		upper = initial
	}
	return &IdleBackoff{initial: initial, upper: upper, current: initial}
}

// Next returns the interval to sleep for this iteration and advances the
// back-off for next time (double, capped).
func (b *IdleBackoff) Next() time.Duration {
	cur := b.current
	doubled := b.current * 2
	if doubled > b.upper {
		doubled = b.upper
	}
	b.current = doubled
	return cur
}

// Reset returns the interval to its initial value, called immediately
// after any successful claim (spec §8 invariant 5).
func (b *IdleBackoff) Reset() {
	b.current = b.initial
}

// Current reports the interval that would be used for the next sleep,
// for metrics/logging.
func (b *IdleBackoff) Current() time.Duration {
	return b.current
}
