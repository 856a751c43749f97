package artifactstore_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/artifactstore"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestAcquire_CacheHitSkipsLockAndFetch(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	content := []byte("solver-bytes")
	hash := md5Hex(content)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "solvers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "solvers", hash+"_mysolver"), content, 0o755))

	m := &domain.MethodsMock{} // no expectations set: a call would fail the test
	s := &artifactstore.Store{Methods: m, BasePath: base, FilesystemID: 1}
	path, err := s.Acquire(context.Background(), artifactstore.KindSolver, 1, hash, "mysolver")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "solvers", hash+"_mysolver"), path)
	m.AssertExpectations(t)
}

func TestAcquire_DownloadsAndVerifiesOnMiss(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	content := []byte("fresh-solver-bytes")
	hash := md5Hex(content)

	m := &domain.MethodsMock{}
	m.On("LockArtifact", mock.Anything, 7, 1).Return(true, nil)
	m.On("RefreshArtifactLock", mock.Anything, 7, 1).Return(nil).Maybe()
	m.On("UnlockArtifact", mock.Anything, 7, 1).Return(nil)

	s := &artifactstore.Store{
		Methods: m, BasePath: base, FilesystemID: 1,
		Fetch: func(ctx context.Context, binaryID int) ([]byte, error) { return content, nil },
	}
	path, err := s.Acquire(context.Background(), artifactstore.KindSolver, 7, hash, "mysolver")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestAcquire_IntegrityMismatchFails(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	m := &domain.MethodsMock{}
	m.On("LockArtifact", mock.Anything, 7, 1).Return(true, nil)
	m.On("UnlockArtifact", mock.Anything, 7, 1).Return(nil)

	s := &artifactstore.Store{
		Methods: m, BasePath: base, FilesystemID: 1,
		Fetch: func(ctx context.Context, binaryID int) ([]byte, error) { return []byte("wrong bytes"), nil },
	}
	_, err := s.Acquire(context.Background(), artifactstore.KindInstance, 7, "deadbeefdeadbeefdeadbeefdeadbeef", "inst")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestAcquire_FetchFailureUnlocksAndReturnsError(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	m := &domain.MethodsMock{}
	m.On("LockArtifact", mock.Anything, 7, 1).Return(true, nil)
	m.On("UnlockArtifact", mock.Anything, 7, 1).Return(nil)

	s := &artifactstore.Store{
		Methods: m, BasePath: base, FilesystemID: 1,
		Fetch: func(ctx context.Context, binaryID int) ([]byte, error) { return nil, assert.AnError },
	}
	_, err := s.Acquire(context.Background(), artifactstore.KindSolver, 7, "deadbeefdeadbeefdeadbeefdeadbeef", "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)
	m.AssertExpectations(t)
}

func TestAcquire_PeerHoldsLockAndContextCancelled(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	m := &domain.MethodsMock{}
	m.On("LockArtifact", mock.Anything, 7, 1).Return(false, nil)

	s := &artifactstore.Store{Methods: m, BasePath: base, FilesystemID: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Acquire(ctx, artifactstore.KindInstance, 7, "deadbeefdeadbeefdeadbeefdeadbeef", "inst")
	require.Error(t, err)
}
