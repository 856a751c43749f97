package executor

import "strings"

// ChildStatus extracts the watchdog's "Child status: N" token when
// present, independent of the specific 126/127 branches ParseWatchdogOutput
// special-cases; used only to populate Job.WatcherExitCode for
// diagnostics.
func ChildStatus(output string) (code int, ok bool) {
	const tok = "Child status:"
	idx := strings.Index(output, tok)
	if idx < 0 {
		return 0, false
	}
	n := firstInt(output[idx+len(tok):])
	return n, true
}
