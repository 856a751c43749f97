// Code generated by mockery (hand-authored equivalent, see DESIGN.md: this
// repo cannot invoke the mockery binary, so the generated-shape output is
// checked in directly). DO NOT regenerate without updating Methods.

package domain

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MethodsMock is a testify-based test double for Methods, in the shape
// mockery emits for this teacher's other ports (UploadRepository,
// JobRepository, ...): an embedded mock.Mock plus one method per
// interface method that records the call and returns the configured
// values.
type MethodsMock struct {
	mock.Mock
}

// EXPECT returns the embedded mock.Mock for call-expectation setup
// (mock.On(...).Return(...)), matching the teacher's `m.EXPECT()` call
// sites minus the fully-typed expecter builder structs mockery would
// otherwise emit per method.
func (m *MethodsMock) EXPECT() *mock.Mock { return &m.Mock }

func (m *MethodsMock) SignOn(ctx Context, host HostInfo, gridQueueID int) (int, error) {
	args := m.Called(ctx, host, gridQueueID)
	return args.Int(0), args.Error(1)
}

func (m *MethodsMock) SignOff(ctx Context, clientID int) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func (m *MethodsMock) PossibleExperiments(ctx Context, gridQueueID int, expIDs []int) ([]JobCandidate, error) {
	args := m.Called(ctx, gridQueueID, expIDs)
	out, _ := args.Get(0).([]JobCandidate)
	return out, args.Error(1)
}

func (m *MethodsMock) ChooseExperiment(candidates []JobCandidate) (int, bool) {
	args := m.Called(candidates)
	return args.Int(0), args.Bool(1)
}

func (m *MethodsMock) FetchAndLockJob(ctx Context, experimentID, clientID, gridQueueID int, computeNode, computeNodeIP string) (Job, error) {
	args := m.Called(ctx, experimentID, clientID, gridQueueID, computeNode, computeNodeIP)
	out, _ := args.Get(0).(Job)
	return out, args.Error(1)
}

func (m *MethodsMock) UpdateJob(ctx Context, job Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MethodsMock) ResetJob(ctx Context, jobID int) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MethodsMock) IncrementCoreCount(ctx Context, experimentID int, gridQueueID int) error {
	args := m.Called(ctx, experimentID, gridQueueID)
	return args.Error(0)
}

func (m *MethodsMock) DecrementCoreCount(ctx Context, experimentID int, gridQueueID int) error {
	args := m.Called(ctx, experimentID, gridQueueID)
	return args.Error(0)
}

func (m *MethodsMock) SolverConfigParams(ctx Context, solverConfigID int) ([]Parameter, error) {
	args := m.Called(ctx, solverConfigID)
	out, _ := args.Get(0).([]Parameter)
	return out, args.Error(1)
}

func (m *MethodsMock) Solver(ctx Context, solverConfigID int) (SolverBinary, error) {
	args := m.Called(ctx, solverConfigID)
	out, _ := args.Get(0).(SolverBinary)
	return out, args.Error(1)
}

func (m *MethodsMock) Instance(ctx Context, instanceID int) (Instance, error) {
	args := m.Called(ctx, instanceID)
	out, _ := args.Get(0).(Instance)
	return out, args.Error(1)
}

func (m *MethodsMock) ArtifactBlob(ctx Context, kind ArtifactKind, id int) ([]byte, error) {
	args := m.Called(ctx, kind, id)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *MethodsMock) LockArtifact(ctx Context, binaryID, filesystemID int) (bool, error) {
	args := m.Called(ctx, binaryID, filesystemID)
	return args.Bool(0), args.Error(1)
}

func (m *MethodsMock) RefreshArtifactLock(ctx Context, binaryID, filesystemID int) error {
	args := m.Called(ctx, binaryID, filesystemID)
	return args.Error(0)
}

func (m *MethodsMock) UnlockArtifact(ctx Context, binaryID, filesystemID int) error {
	args := m.Called(ctx, binaryID, filesystemID)
	return args.Error(0)
}

func (m *MethodsMock) GridQueueByName(ctx Context, name string) (GridQueue, error) {
	args := m.Called(ctx, name)
	out, _ := args.Get(0).(GridQueue)
	return out, args.Error(1)
}

func (m *MethodsMock) ReadMessage(ctx Context, clientID int) (string, error) {
	args := m.Called(ctx, clientID)
	return args.String(0), args.Error(1)
}

func (m *MethodsMock) Report(ctx Context, clientID int, at time.Time) error {
	args := m.Called(ctx, clientID, at)
	return args.Error(0)
}

// CommandSourceMock is the hand-authored mockery-shape double for
// CommandSource.
type CommandSourceMock struct {
	mock.Mock
}

func (m *CommandSourceMock) EXPECT() *mock.Mock { return &m.Mock }

func (m *CommandSourceMock) Next() (Command, bool) {
	args := m.Called()
	out, _ := args.Get(0).(Command)
	return out, args.Bool(1)
}
