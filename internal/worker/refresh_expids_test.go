package worker

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/edacc-worker/internal/jobserverclient"
)

func TestRefreshExpIDs_NilJobServerLeavesExpIDsUntouched(t *testing.T) {
	t.Parallel()
	w := &Worker{ExpIDs: []int{1, 2, 3}}
	w.refreshExpIDs()
	require.Equal(t, []int{1, 2, 3}, w.ExpIDs)
}

func TestRefreshExpIDs_PullsFromJobServer(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		binary.Write(conn, binary.BigEndian, int32(jobserverclient.ProtocolVersion))
		var v int32
		binary.Read(conn, binary.BigEndian, &v)
		magic := make([]byte, len(jobserverclient.Magic))
		io.ReadFull(conn, magic)
		binary.Write(conn, binary.BigEndian, int32(1))
		auth := make([]byte, 16)
		io.ReadFull(conn, auth)
		var dbLen int32
		binary.Read(conn, binary.BigEndian, &dbLen)
		dbBytes := make([]byte, dbLen+1)
		io.ReadFull(conn, dbBytes)

		var fn int16
		binary.Read(conn, binary.BigEndian, &fn)
		var gridQueueID int32
		binary.Read(conn, binary.BigEndian, &gridQueueID)
		binary.Write(conn, binary.BigEndian, int32(1))
		binary.Write(conn, binary.BigEndian, int32(999))
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := jobserverclient.New(host, port, "edacc", "worker", "secret")
	defer c.Close()

	w := &Worker{JobServer: c, GridQueueID: 4}
	w.refreshExpIDs()
	require.Equal(t, []int{999}, w.ExpIDs)
}
