package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

func newTestSimulated(jobs []domain.Job) *Simulated {
	return &Simulated{jobs: jobs, statusCount: make(map[int]int)}
}

func TestSimulated_SignOnAndOffAreNoops(t *testing.T) {
	t.Parallel()
	s := newTestSimulated(nil)
	id, err := s.SignOn(context.Background(), domain.HostInfo{}, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, id)
	assert.NoError(t, s.SignOff(context.Background(), id))
}

func TestSimulated_FetchAndLockJob_ServesInOrderThenExhausts(t *testing.T) {
	t.Parallel()
	s := newTestSimulated([]domain.Job{{ID: 1}, {ID: 2}})

	first, err := s.FetchAndLockJob(context.Background(), 0, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, domain.StatusRunning, first.Status)

	second, err := s.FetchAndLockJob(context.Background(), 0, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	third, err := s.FetchAndLockJob(context.Background(), 0, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.NoJob, third)
}

func TestSimulated_UpdateJob_TalliesStatusCounts(t *testing.T) {
	t.Parallel()
	s := newTestSimulated(nil)
	require.NoError(t, s.UpdateJob(context.Background(), domain.Job{Status: domain.StatusFinished}))
	require.NoError(t, s.UpdateJob(context.Background(), domain.Job{Status: domain.StatusFinished}))
	require.NoError(t, s.UpdateJob(context.Background(), domain.Job{Status: domain.StatusCPULimit}))
	assert.Equal(t, 2, s.statusCount[domain.StatusFinished])
	assert.Equal(t, 1, s.statusCount[domain.StatusCPULimit])
}

func TestSimulated_ChooseExperiment_AlwaysSucceedsWithZero(t *testing.T) {
	t.Parallel()
	s := newTestSimulated(nil)
	id, ok := s.ChooseExperiment(nil)
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestSimulated_CoreCountAndResetAreNoops(t *testing.T) {
	t.Parallel()
	s := newTestSimulated(nil)
	assert.NoError(t, s.IncrementCoreCount(context.Background(), 1, 1))
	assert.NoError(t, s.DecrementCoreCount(context.Background(), 1, 1))
	assert.NoError(t, s.ResetJob(context.Background(), 1))
}
