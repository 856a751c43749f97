package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/executor"
)

func TestBuildWatchdogCommand_OmitsUnlimitedFlags(t *testing.T) {
	t.Parallel()
	job := domain.Job{
		CPUTimeLimit:         -1,
		WallClockTimeLimit:   300,
		MemoryLimit:          -1,
		StackSizeLimit:       -1,
		OutputSizeLimitFirst: -1,
		OutputSizeLimitLast:  -1,
	}
	cmd := executor.BuildWatchdogCommand("/opt/runsolver", job, "watch.out", "solver.out")
	assert.Contains(t, cmd, "/opt/runsolver --timestamp")
	assert.Contains(t, cmd, `-w "watch.out"`)
	assert.Contains(t, cmd, `-o "solver.out"`)
	assert.Contains(t, cmd, "-W 300")
	assert.NotContains(t, cmd, "-C ")
	assert.NotContains(t, cmd, "-M ")
	assert.NotContains(t, cmd, "-S ")
	assert.NotContains(t, cmd, "-O ")
}

func TestBuildWatchdogCommand_OutputLimitRangeIsCumulative(t *testing.T) {
	t.Parallel()
	job := domain.Job{
		CPUTimeLimit: -1, WallClockTimeLimit: -1, MemoryLimit: -1, StackSizeLimit: -1,
		OutputSizeLimitFirst: 10, OutputSizeLimitLast: 5,
	}
	cmd := executor.BuildWatchdogCommand("/opt/runsolver", job, "w", "s")
	assert.Contains(t, cmd, "-O 10,15")
}

func TestBuildSolverCommand_OrdersAndSubstitutesSeedAndInstance(t *testing.T) {
	t.Parallel()
	solver := domain.SolverBinary{RunPath: "solver-bin"}
	job := domain.Job{Seed: 42}
	params := []domain.Parameter{
		{Name: "timeout", Prefix: "-t", Space: true, HasValue: true, Value: "900", Order: 2},
		{Name: "seed", Prefix: "-s", Space: true, Order: 1},
		{Name: "instance", Order: 3},
	}
	cmd := executor.BuildSolverCommand(solver, "/base", "/instances/foo.cnf", job, params)
	assert.Contains(t, cmd, `"/base/solver-bin"`)
	assert.Contains(t, cmd, "-s 42")
	assert.Contains(t, cmd, `"/instances/foo.cnf"`)

	seedIdx := indexOf(cmd, "-s 42")
	timeoutIdx := indexOf(cmd, "-t 900")
	instanceIdx := indexOf(cmd, `"/instances/foo.cnf"`)
	assert.True(t, seedIdx < timeoutIdx, "seed (order 1) must precede timeout (order 2)")
	assert.True(t, timeoutIdx < instanceIdx, "timeout (order 2) must precede instance (order 3)")
}

func TestBuildSolverCommand_ValuelessParameterEmitsPrefixOnly(t *testing.T) {
	t.Parallel()
	solver := domain.SolverBinary{RunPath: "solver-bin"}
	params := []domain.Parameter{{Name: "verbose", Prefix: "-v", HasValue: false, Order: 1}}
	cmd := executor.BuildSolverCommand(solver, "/base", "/i", domain.Job{}, params)
	assert.Contains(t, cmd, "-v")
	assert.NotContains(t, cmd, "-v ")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
