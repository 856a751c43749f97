package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/executor"
	"github.com/fairyhunter13/edacc-worker/internal/scheduler"
	"github.com/fairyhunter13/edacc-worker/internal/worker"
)

// TestRun_KillClientSoftExitsOnceSlotsAreIdle exercises spec §4.5/§8
// scenario 6: with no slots in use when kill_client soft arrives, the
// Main Loop should sign off and return immediately rather than waiting
// out the idle-exit window.
func TestRun_KillClientSoftExitsOnceSlotsAreIdle(t *testing.T) {
	t.Parallel()

	methods := &domain.MethodsMock{}
	methods.On("SignOff", mock.Anything, 1).Return(nil)

	ctrl := &domain.CommandSourceMock{}
	ctrl.On("Next").Return(domain.Command{Kind: domain.CommandKillClientSoft}, true).Once()
	ctrl.On("Next").Return(domain.Command{}, false)

	w := worker.New(&worker.Worker{
		Methods:      methods,
		ClientID:     1,
		GridQueueID:  1,
		NumSlots:     0, // no slots to fill or drain
		Scheduler:    &scheduler.Scheduler{Methods: methods, GridQueueID: 1, ClientID: 1},
		Executor:     &executor.Executor{Methods: methods},
		Control:      ctrl,
		WaitJobsTime: time.Hour, // would hang the test if the soft-kill path didn't short-circuit it
		Backoff:      executor.NewIdleBackoff(10 * time.Millisecond),
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), "test-host") }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit promptly after kill_client soft")
	}

	methods.AssertCalled(t, "SignOff", mock.Anything, 1)
}
