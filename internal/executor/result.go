package executor

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// WatchdogResult is the parsed subset of watchdog stdout relevant to a
// job's persisted status/result. Re-parsing the same text twice yields
// the same tuple (spec §8 idempotence property).
type WatchdogResult struct {
	Status     int
	ResultCode int
	ResultTime float64
	Matched    bool // true if any recognized token was found
}

// tokens are tried in this exact order; the first match wins (spec §4.4).
// "CPU time (s):" is listed last since every other outcome also produces
// watchdog timing output earlier in the stream for different reasons.
var tokenOrder = []string{
	"Maximum CPU time exceeded:",
	"Maximum wall clock time exceeded:",
	"Maximum VSize exceeded:",
	"Maximum StackSize exceeded:", // rewrite addition, SPEC_FULL.md §9 stack-limit decision
	"Child ended because it received signal",
	"Child status: 126",
	"Child status: 127",
	"CPU time (s):",
}

// ParseWatchdogOutput implements the first-match-wins parser of spec
// §4.4 over the watchdog's (runsolver) stdout text.
func ParseWatchdogOutput(output string) WatchdogResult {
	for _, tok := range tokenOrder {
		idx := strings.Index(output, tok)
		if idx < 0 {
			continue
		}
		rest := output[idx+len(tok):]
		switch tok {
		case "Maximum CPU time exceeded:":
			return WatchdogResult{Status: domain.StatusCPULimit, ResultCode: domain.ResultCPULimit, Matched: true}
		case "Maximum wall clock time exceeded:":
			return WatchdogResult{Status: domain.StatusWallLimit, ResultCode: domain.ResultWallLimit, Matched: true}
		case "Maximum VSize exceeded:":
			return WatchdogResult{Status: domain.StatusMemoryLimit, ResultCode: domain.ResultMemoryLimit, Matched: true}
		case "Maximum StackSize exceeded:":
			return WatchdogResult{Status: domain.StatusStackLimit, ResultCode: domain.ResultStackLimit, Matched: true}
		case "Child ended because it received signal":
			sig := firstInt(rest)
			return WatchdogResult{
				Status:     domain.StatusSignaled,
				ResultCode: domain.ResultSignalBase - sig,
				Matched:    true,
			}
		case "Child status: 126":
			return WatchdogResult{Status: domain.StatusSignaled, ResultCode: domain.ResultExecFailed126, Matched: true}
		case "Child status: 127":
			return WatchdogResult{Status: domain.StatusSignaled, ResultCode: domain.ResultExecFailed127, Matched: true}
		case "CPU time (s):":
			t := firstFloat(rest)
			return WatchdogResult{Status: domain.StatusFinished, ResultTime: t, Matched: true}
		}
	}
	return WatchdogResult{}
}

// WatchdogCrashStatus computes the persisted status when the watchdog
// process itself (not the solver it supervises) was killed by signal
// sig, overriding any token-parsed result (spec §4.4).
func WatchdogCrashStatus(sig int) int {
	return domain.StatusWatchdogCrashBase - sig
}

func firstInt(s string) int {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(f[0]))
	return n
}

func firstFloat(s string) float64 {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(strings.TrimSpace(f[0]), 64)
	return v
}

// ParseVerifierOutput extracts the verifier's result code: the last
// whitespace-delimited field of the last non-blank line, if that field is
// an integer (spec §4.4). It returns ok=false if it is not, in which case the
// caller leaves resultCode at its existing (possibly zero) value.
func ParseVerifierOutput(output []byte) (code int, ok bool) {
	sc := bufio.NewScanner(strings.NewReader(string(output)))
	var lastNonEmpty string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lastNonEmpty = line
		}
	}
	if lastNonEmpty == "" {
		return 0, false
	}
	fields := strings.Fields(lastNonEmpty)
	last := fields[len(fields)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	return n, true
}
