package domain

import "errors"

// Error taxonomy (sentinels). Adapters wrap one of these with op= context
// via fmt.Errorf("op=...: %w", err); callers branch with errors.Is.
var (
	// ErrConfig signals a missing or malformed configuration value; fatal
	// at startup, never retried.
	ErrConfig = errors.New("config error")

	// ErrDBConnect signals the gateway could not establish or re-establish
	// a pool connection; retried with backoff.
	ErrDBConnect = errors.New("database connect error")

	// ErrDBTransient signals a connection-class failure (SQLSTATE class 08
	// or a driver error reported safe to retry) that outlasted the
	// gateway's reconnect window; it is returned together with ErrDBQuery.
	ErrDBTransient = errors.New("transient database error")

	// ErrDBQuery signals a query failed for a reason that retrying will
	// not fix (bad SQL, constraint violation, type mismatch).
	ErrDBQuery = errors.New("database query error")

	// ErrClaimRace signals the job-claim transaction's chosen row was
	// already claimed by another worker between the SELECT and the
	// UPDATE; the scheduler should pick a new candidate.
	ErrClaimRace = errors.New("job claim lost race")

	// ErrFetch signals an artifact could not be downloaded or decompressed.
	ErrFetch = errors.New("artifact fetch error")

	// ErrIntegrity signals a downloaded artifact's MD5 did not match the
	// database record after a successful decompression.
	ErrIntegrity = errors.New("artifact integrity mismatch")

	// ErrLockTimeout signals a peer's FSDownloadLock row went stale while
	// this worker waited on it and this worker took the lock over; the
	// artifact store then downloads the artifact itself.
	ErrLockTimeout = errors.New("download lock timeout")

	// ErrChildExec signals the watchdog or verifier process could not be
	// started (missing binary, permission denied, exec failure).
	ErrChildExec = errors.New("child process exec error")

	// ErrLimitExceeded signals the watchdog reported a resource limit
	// breach (CPU, wall clock, memory, stack, or output size).
	ErrLimitExceeded = errors.New("resource limit exceeded")

	// ErrWatchdogCrash signals the watchdog process itself terminated
	// abnormally (killed by a signal) rather than reporting a result.
	ErrWatchdogCrash = errors.New("watchdog crashed")

	// ErrVerifier signals the verifier subprocess could not be run or
	// returned an exit code outside its documented range.
	ErrVerifier = errors.New("verifier error")

	// ErrSignal signals the worker received a termination signal mid-job
	// and is unwinding through the signal-deferral region.
	ErrSignal = errors.New("signal received")

	// ErrJobServer signals the optional advisory job-server TCP protocol
	// failed (auth, framing, or connection); the caller should fall back
	// to the ordinary DB-polling claim path.
	ErrJobServer = errors.New("job server error")
)
