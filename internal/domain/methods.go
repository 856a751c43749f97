package domain

import "time"

// ArtifactKind distinguishes a solver binary from a problem instance when
// fetching raw artifact bytes.
type ArtifactKind int

const (
	ArtifactSolver ArtifactKind = iota
	ArtifactInstance
)

// Methods is the capability interface the scheduler, executor, and
// control channel depend on instead of a concrete Postgres gateway. A
// live implementation lives in internal/adapter/repo/postgres; a
// simulated one lives in internal/worker/simulate.go, pre-loads its job
// set once, and never writes back — selected at construction time
// according to the -s flag.
//
//go:generate mockery --name=Methods --with-expecter --filename=methods_mock.go
type Methods interface {
	// SignOn inserts a new Client row for this worker and returns the
	// assigned Client.ID.
	SignOn(ctx Context, host HostInfo, gridQueueID int) (int, error)

	// SignOff removes this worker's Client row on graceful shutdown.
	SignOff(ctx Context, clientID int) error

	// PossibleExperiments returns the experiments eligible for this grid
	// queue together with their current claimed core counts, restricted
	// to expIDs when non-empty (as supplied by the job-server channel).
	PossibleExperiments(ctx Context, gridQueueID int, expIDs []int) ([]JobCandidate, error)

	// ChooseExperiment applies the fair-share diff() formula over
	// candidates and returns the winning experiment id, or ok=false if
	// none are eligible.
	ChooseExperiment(candidates []JobCandidate) (experimentID int, ok bool)

	// FetchAndLockJob runs the random-offset SELECT FOR UPDATE / UPDATE
	// claim transaction for one job of the given experiment, stamping the
	// claiming worker's grid queue id, hostname, and IP onto the row
	// (spec §4.3 step 4's computeQueue/computeNode/computeNodeIP columns)
	// so fleet operators can see which node owns a running job. It
	// returns ErrClaimRace if the transaction found no claimable row
	// because a competitor won it first.
	FetchAndLockJob(ctx Context, experimentID, clientID, gridQueueID int, computeNode, computeNodeIP string) (Job, error)

	// UpdateJob persists the final result fields of a completed or
	// failed job.
	UpdateJob(ctx Context, job Job) error

	// ResetJob reverts a job back to StatusNotStarted, used when a
	// worker crashes mid-run or abandons a job on shutdown.
	ResetJob(ctx Context, jobID int) error

	// IncrementCoreCount/DecrementCoreCount maintain the per-experiment
	// claimed-core counter used by the diff() formula.
	IncrementCoreCount(ctx Context, experimentID int, gridQueueID int) error
	DecrementCoreCount(ctx Context, experimentID int, gridQueueID int) error

	// SolverConfigParams returns the ordered parameter vector for a
	// solver configuration.
	SolverConfigParams(ctx Context, solverConfigID int) ([]Parameter, error)

	// Solver and Instance resolve the artifact metadata referenced by a
	// claimed job.
	Solver(ctx Context, solverConfigID int) (SolverBinary, error)
	Instance(ctx Context, instanceID int) (Instance, error)

	// ArtifactBlob downloads the raw (possibly LZMA-compressed) bytes of a
	// solver or instance artifact, keyed by its own id and ArtifactKind.
	ArtifactBlob(ctx Context, kind ArtifactKind, id int) ([]byte, error)

	// LockArtifact and UnlockArtifact guard cross-worker access to a
	// shared filesystem location while one artifact is being
	// materialized, keyed by (binaryID, filesystemID) (spec §3/§4.2) so
	// downloads of unrelated artifacts on the same filesystem never
	// contend with each other; Refresh extends a held lock's staleness
	// deadline.
	LockArtifact(ctx Context, binaryID, filesystemID int) (acquired bool, err error)
	RefreshArtifactLock(ctx Context, binaryID, filesystemID int) error
	UnlockArtifact(ctx Context, binaryID, filesystemID int) error

	// GridQueueByName resolves the grid queue row named by the worker's
	// `gridqueue` config key, used both to obtain the id SignOn needs and
	// to validate the homogeneity guard (spec §4.6) against the host's
	// measured NumCores/CPUModel.
	GridQueueByName(ctx Context, name string) (GridQueue, error)

	// ReadMessage returns and clears this client's pending control
	// message column.
	ReadMessage(ctx Context, clientID int) (string, error)

	// Report updates the client's last-report heartbeat timestamp.
	Report(ctx Context, clientID int, at time.Time) error
}

// CommandSource is consumed by the Main Loop to retrieve control-channel
// commands. The DB-backed Control Channel is the only implementation
// today; a socket-based one could satisfy the same interface.
//
//go:generate mockery --name=CommandSource --with-expecter --filename=command_source_mock.go
type CommandSource interface {
	// Next returns the next queued command, or ok=false if none is
	// currently available.
	Next() (Command, bool)
}

// CommandKind enumerates the control-channel command verbs.
type CommandKind int

const (
	CommandKillJob CommandKind = iota
	CommandKillClientSoft
	CommandKillClientHard
	CommandWaitTime
)

// Command is one parsed control-channel instruction.
type Command struct {
	Kind      CommandKind
	JobID     int   // valid for CommandKillJob
	WaitTime  int64 // seconds; valid for CommandWaitTime
}
