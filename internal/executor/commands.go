// Package executor implements the per-slot subprocess supervision
// described in spec §4.4: build the watchdog and solver command lines,
// fork the watchdog, wait for it non-blockingly, parse its output, run
// the optional verifier, and assemble the persisted job result.
package executor

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// BuildWatchdogCommand builds the runsolver invocation for job, grounded
// on original_source/src/client.cc's build_watcher_command. Limit flags
// are omitted whenever their value is -1 (spec §4.4, boundary behavior).
// watcherPath is the absolute path to the runsolver binary.
func BuildWatchdogCommand(watcherPath string, job domain.Job, watcherOutFile, solverOutFile string) string {
	var b strings.Builder
	b.WriteString(watcherPath)
	b.WriteString(" --timestamp")
	fmt.Fprintf(&b, " -w %q", watcherOutFile)
	fmt.Fprintf(&b, " -o %q", solverOutFile)
	if job.CPUTimeLimit != -1 {
		fmt.Fprintf(&b, " -C %d", job.CPUTimeLimit)
	}
	if job.WallClockTimeLimit != -1 {
		fmt.Fprintf(&b, " -W %d", job.WallClockTimeLimit)
	}
	if job.MemoryLimit != -1 {
		fmt.Fprintf(&b, " -M %d", job.MemoryLimit)
	}
	if job.StackSizeLimit != -1 {
		fmt.Fprintf(&b, " -S %d", job.StackSizeLimit)
	}
	if job.OutputSizeLimitFirst != -1 && job.OutputSizeLimitLast != -1 {
		fmt.Fprintf(&b, " -O %d,%d", job.OutputSizeLimitFirst, job.OutputSizeLimitFirst+job.OutputSizeLimitLast)
	}
	return b.String()
}

// BuildSolverCommand builds the solver invocation from its sorted
// parameter vector, grounded on client.cc's build_solver_command. The
// special parameter names "seed" and "instance" substitute job.Seed and
// instancePath; a parameter with AttachToPrevious emits no leading
// separator; a valueless parameter (HasValue == false) emits only its
// prefix.
func BuildSolverCommand(solver domain.SolverBinary, solverBasePath, instancePath string, job domain.Job, params []domain.Parameter) string {
	sorted := make([]domain.Parameter, len(params))
	copy(sorted, params)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var b strings.Builder
	if solver.RunCommand != "" {
		b.WriteString(solver.RunCommand)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%q ", filepath.Join(solverBasePath, solver.RunPath))

	for _, p := range sorted {
		if !p.AttachToPrevious {
			b.WriteString(" ")
		}
		b.WriteString(p.Prefix)
		if p.Prefix != "" && p.Space {
			b.WriteString(" ")
		}
		switch p.Name {
		case "seed":
			b.WriteString(strconv.Itoa(job.Seed))
		case "instance":
			fmt.Fprintf(&b, "%q", instancePath)
		default:
			if p.HasValue {
				b.WriteString(p.Value)
			}
		}
	}
	return b.String()
}
