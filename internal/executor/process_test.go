package executor_test

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/executor"
)

func TestLaunchAndReap_NormalExit(t *testing.T) {
	t.Parallel()
	cmd, err := executor.Launch(t.TempDir(), "exit 0")
	require.NoError(t, err)
	done := make(chan executor.Completion, 1)
	executor.Reap(cmd, done)

	select {
	case c := <-done:
		assert.Equal(t, 0, c.ExitCode)
		assert.Equal(t, 0, c.Signal)
		assert.False(t, c.ExecFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestLaunchAndReap_NonZeroExit(t *testing.T) {
	t.Parallel()
	cmd, err := executor.Launch(t.TempDir(), "exit 3")
	require.NoError(t, err)
	done := make(chan executor.Completion, 1)
	executor.Reap(cmd, done)

	c := <-done
	assert.Equal(t, 3, c.ExitCode)
}

func TestKillTree_TerminatesGroup(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process-group signaling is linux-specific")
	}
	t.Parallel()
	cmd, err := executor.Launch(t.TempDir(), "sleep 30")
	require.NoError(t, err)
	done := make(chan executor.Completion, 1)
	executor.Reap(cmd, done)

	require.NoError(t, executor.KillTree(cmd.Process.Pid, time.Second))

	select {
	case c := <-done:
		assert.NotEqual(t, 0, c.Signal)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not reaped after KillTree")
	}
}

func TestRunVerifier_CapturesStdoutAndExitCode(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true(1) not available")
	}
	out, code, err := executor.RunVerifier(context.Background(), "echo 10", "inst.cnf", "solver.out")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, string(out), "10")
}

func TestRunVerifier_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false(1) not available")
	}
	_, code, err := executor.RunVerifier(context.Background(), "false", "inst.cnf", "solver.out")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestRunVerifier_EmptyCommandIsAnError(t *testing.T) {
	t.Parallel()
	_, _, err := executor.RunVerifier(context.Background(), "", "inst.cnf", "solver.out")
	assert.Error(t, err)
}
