package jobserverclient_test

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/jobserverclient"
)

// fakeServer emulates just enough of the handshake and one function call
// to exercise Client's wire format end to end.
func fakeServer(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return ln.Addr().String()
}

func handshake(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, binary.Write(conn, binary.BigEndian, int32(jobserverclient.ProtocolVersion)))
	var gotVersion int32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &gotVersion))
	assert.Equal(t, int32(jobserverclient.ProtocolVersion), gotVersion)

	magic := make([]byte, len(jobserverclient.Magic))
	_, err := io.ReadFull(conn, magic)
	require.NoError(t, err)
	assert.Equal(t, jobserverclient.Magic, string(magic))

	require.NoError(t, binary.Write(conn, binary.BigEndian, int32(12345)))
	authResp := make([]byte, 16) // md5 sum length
	_, err = io.ReadFull(conn, authResp)
	require.NoError(t, err)

	var dbLen int32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &dbLen))
	dbBytes := make([]byte, dbLen+1)
	_, err = io.ReadFull(conn, dbBytes)
	require.NoError(t, err)
}

func TestPossibleExperimentIDs_RoundTrip(t *testing.T) {
	t.Parallel()
	addr := fakeServer(t, func(conn net.Conn) {
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		handshake(t, conn)

		var fn int16
		require.NoError(t, binary.Read(conn, binary.BigEndian, &fn))
		assert.Equal(t, int16(0), fn)
		var gridQueueID int32
		require.NoError(t, binary.Read(conn, binary.BigEndian, &gridQueueID))
		assert.Equal(t, int32(9), gridQueueID)

		require.NoError(t, binary.Write(conn, binary.BigEndian, int32(2)))
		require.NoError(t, binary.Write(conn, binary.BigEndian, int32(101)))
		require.NoError(t, binary.Write(conn, binary.BigEndian, int32(102)))
	})

	host, port := splitAddr(t, addr)
	c := jobserverclient.New(host, port, "edacc", "worker", "secret")
	defer c.Close()

	ids, err := c.PossibleExperimentIDs(9)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102}, ids)
}

func TestJobIDForExperiment_RoundTrip(t *testing.T) {
	t.Parallel()
	addr := fakeServer(t, func(conn net.Conn) {
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		handshake(t, conn)

		var fn int16
		require.NoError(t, binary.Read(conn, binary.BigEndian, &fn))
		assert.Equal(t, int16(1), fn)
		var expID int32
		require.NoError(t, binary.Read(conn, binary.BigEndian, &expID))
		assert.Equal(t, int32(55), expID)

		require.NoError(t, binary.Write(conn, binary.BigEndian, int32(777)))
	})

	host, port := splitAddr(t, addr)
	c := jobserverclient.New(host, port, "edacc", "worker", "secret")
	defer c.Close()

	jobID, err := c.JobIDForExperiment(55)
	require.NoError(t, err)
	assert.Equal(t, 777, jobID)
}

func TestFormatIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1,2,3", jobserverclient.FormatIDs([]int{1, 2, 3}))
	assert.Equal(t, "", jobserverclient.FormatIDs(nil))
}

func TestPossibleExperimentIDs_ConnectionRefusedReturnsError(t *testing.T) {
	t.Parallel()
	c := jobserverclient.New("127.0.0.1", 1, "edacc", "worker", "secret")
	defer c.Close()
	_, err := c.PossibleExperimentIDs(1)
	assert.Error(t, err)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
