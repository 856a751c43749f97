package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Completion is delivered on a slot's completion channel when its child
// process exits, whichever way it exits.
type Completion struct {
	Pid        int
	ExitCode   int  // child's own exit status, when it exited normally
	Signal     int  // signal that killed the child, 0 if none
	ExecFailed bool // true if the exec itself never started (spec §4.4 -398/-399 path)
	Err        error
}

// Launch forks /bin/bash -c <cmd> with its working directory set to
// solverBaseDir, grounded on client.cc's fork()+execl("/bin/bash","-c",
// cmd,...) sequence (spec §4.4 step 3). It returns immediately with the
// running *exec.Cmd; the caller reaps it via Reap in its own goroutine so
// the Main Loop never blocks (spec §5).
func Launch(solverBaseDir, cmd string) (*exec.Cmd, error) {
	c := exec.Command("/bin/bash", "-c", cmd)
	c.Dir = solverBaseDir
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("op=executor.Launch: %w", err)
	}
	return c, nil
}

// Reap waits for cmd to exit on its own goroutine and delivers exactly
// one Completion on done. This is the cooperative-task replacement for
// hand-rolled waitpid(WNOHANG) polling (SPEC_FULL.md §9 "Background
// threads"): the Main Loop drains done without blocking.
func Reap(cmd *exec.Cmd, done chan<- Completion) {
	go func() {
		err := cmd.Wait()
		c := Completion{Pid: cmd.Process.Pid}
		if err == nil {
			done <- c
			return
		}
		var exitErr *exec.ExitError
		if !asExitError(err, &exitErr) {
			c.Err = err
			done <- c
			return
		}
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if !ok {
			c.Err = err
			done <- c
			return
		}
		switch {
		case ws.Signaled():
			c.Signal = int(ws.Signal())
		case ws.Exited():
			c.ExitCode = ws.ExitStatus()
			if c.ExitCode == 126 || c.ExitCode == 127 {
				c.ExecFailed = true
			}
		}
		done <- c
	}()
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// KillTree SIGTERMs the full process group of pid, waits up to grace for
// it to exit, then SIGKILLs any survivor. Ported from original_source's
// process.cc kill_process(pid, wait_upto): the original walks /proc
// manually to find descendants; starting the child with Setpgid lets Go
// signal the whole tree via the negative pgid in one syscall instead.
func KillTree(pid int, grace time.Duration) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("op=executor.KillTree: %w", err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			break // group leader is gone; SIGKILL whatever is left of the group
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("op=executor.KillTree: %w", err)
	}
	return nil
}

// RunVerifier popens the configured verifier command with the instance
// and solver-output paths as positional args (spec §4.4/§6 verifier
// contract) and captures its stdout.
func RunVerifier(ctx context.Context, verifierCmdLine, instancePath, solverOutputPath string) (stdout []byte, exitCode int, err error) {
	fields := strings.Fields(verifierCmdLine)
	if len(fields) == 0 {
		return nil, 0, fmt.Errorf("op=executor.RunVerifier: empty verifier command")
	}
	args := append(append([]string{}, fields[1:]...), instancePath, solverOutputPath)
	c := exec.CommandContext(ctx, fields[0], args...)
	out, runErr := c.Output()
	if runErr == nil {
		return out, 0, nil
	}
	var exitErr *exec.ExitError
	if asExitError(runErr, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	return out, 0, fmt.Errorf("op=executor.RunVerifier: %w", runErr)
}

// outputFilenames derives the .w/.o filenames for a job, grounded on
// client.cc's get_watcher_output_filename/get_solver_output_filename:
// "<db>_<idJob>.w"/".o" under resultsDir.
func outputFilenames(resultsDir, database string, jobID int) (watcherFile, solverFile string) {
	base := database + "_" + strconv.Itoa(jobID)
	return resultsDir + "/" + base + ".w", resultsDir + "/" + base + ".o"
}

// cleanupOutputFiles removes the .w/.o files for a job unless keepOutput
// is set (spec §4.4 cleanup step).
func cleanupOutputFiles(keepOutput bool, paths ...string) {
	if keepOutput {
		return
	}
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
