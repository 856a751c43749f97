package hostinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSpace(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", joinSpace(nil))
	assert.Equal(t, "a", joinSpace([]string{"a"}))
	assert.Equal(t, "a b c", joinSpace([]string{"a", "b", "c"}))
}

func TestReadProcFile_MissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", readProcFile("/does/not/exist"))
}

func TestGather_SmokeTest(t *testing.T) {
	info, err := Gather(context.Background())
	require.NoError(t, err)
	assert.Greater(t, info.NumThreads, 0)
	assert.NotZero(t, info.MemoryTotal)
}
