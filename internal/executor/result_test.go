package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/executor"
)

func TestParseWatchdogOutput_CPULimit(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("some preamble\nMaximum CPU time exceeded: killing\n")
	require.True(t, r.Matched)
	assert.Equal(t, domain.StatusCPULimit, r.Status)
	assert.Equal(t, domain.ResultCPULimit, r.ResultCode)
}

func TestParseWatchdogOutput_StackLimit(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("Maximum StackSize exceeded: 8192 KiB\n")
	require.True(t, r.Matched)
	assert.Equal(t, domain.StatusStackLimit, r.Status)
	assert.Equal(t, domain.ResultStackLimit, r.ResultCode)
}

func TestParseWatchdogOutput_SignalOffsetsResultCode(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("Child ended because it received signal 11 (SIGSEGV)\n")
	require.True(t, r.Matched)
	assert.Equal(t, domain.StatusSignaled, r.Status)
	assert.Equal(t, domain.ResultSignalBase-11, r.ResultCode)
}

func TestParseWatchdogOutput_ExecFailure126(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("Child status: 126\n")
	require.True(t, r.Matched)
	assert.Equal(t, domain.ResultExecFailed126, r.ResultCode)
}

func TestParseWatchdogOutput_NormalFinishCapturesCPUTime(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("CPU time (s): 12.34\nWCTIME (s): 13\n")
	require.True(t, r.Matched)
	assert.Equal(t, domain.StatusFinished, r.Status)
	assert.Equal(t, 12.34, r.ResultTime)
}

func TestParseWatchdogOutput_FirstMatchWinsOverLaterTokens(t *testing.T) {
	t.Parallel()
	// CPU-limit token appears before the later "CPU time (s):" accounting
	// line that runsolver still emits; the limit must win.
	r := executor.ParseWatchdogOutput("Maximum CPU time exceeded: limit hit\nCPU time (s): 900.0\n")
	assert.Equal(t, domain.StatusCPULimit, r.Status)
}

func TestParseWatchdogOutput_NoRecognizedToken(t *testing.T) {
	t.Parallel()
	r := executor.ParseWatchdogOutput("nothing recognizable here")
	assert.False(t, r.Matched)
}

func TestParseWatchdogOutput_Idempotent(t *testing.T) {
	t.Parallel()
	out := "Maximum wall clock time exceeded: 600s\n"
	first := executor.ParseWatchdogOutput(out)
	second := executor.ParseWatchdogOutput(out)
	assert.Equal(t, first, second)
}

func TestWatchdogCrashStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.StatusWatchdogCrashBase-9, executor.WatchdogCrashStatus(9))
}

func TestParseVerifierOutput_TrailingInteger(t *testing.T) {
	t.Parallel()
	code, ok := executor.ParseVerifierOutput([]byte("checking solution...\nSAT\n10\n"))
	require.True(t, ok)
	assert.Equal(t, 10, code)
}

func TestParseVerifierOutput_NegativeTrailingInteger(t *testing.T) {
	t.Parallel()
	code, ok := executor.ParseVerifierOutput([]byte("result: -1\n"))
	require.True(t, ok)
	assert.Equal(t, -1, code)
}

func TestParseVerifierOutput_NoTrailingInteger(t *testing.T) {
	t.Parallel()
	_, ok := executor.ParseVerifierOutput([]byte("INVALID\n"))
	assert.False(t, ok)
}

func TestParseVerifierOutput_EmptyOutput(t *testing.T) {
	t.Parallel()
	_, ok := executor.ParseVerifierOutput(nil)
	assert.False(t, ok)
}

func TestParseVerifierOutput_IgnoresTrailingBlankLines(t *testing.T) {
	t.Parallel()
	code, ok := executor.ParseVerifierOutput([]byte("11\n\n\n"))
	require.True(t, ok)
	assert.Equal(t, 11, code)
}
