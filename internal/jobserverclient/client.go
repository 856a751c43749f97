// Package jobserverclient implements the optional advisory job-server
// protocol described in spec §6: a small framed TCP protocol used only
// to narrow the set of experiment ids a worker considers; the DB claim
// transaction is still authoritative (spec §9 "job-server advisory
// status", confirmed intentional). Grounded on
// original_source/src/jobserver.cc.
package jobserverclient

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/edacc-worker/internal/adapter/observability"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// ProtocolVersion is the client's understood protocol version
// (jobserver.cc's client_protocol_version).
const ProtocolVersion = 2

// Magic is the 12-byte handshake token sent after the version exchange.
const Magic = "EDACC_CLIENT"

const (
	funcPossibleExperimentIDs = 0
	funcJobIDForExperiment    = 1
)

// Client is a connection to the optional job-server. It reconnects
// lazily on demand and is safe to retry after a failure; every call runs
// through the Client's own observability.CircuitBreaker, so repeated
// outages fail fast instead of blocking the Main Loop (SPEC_FULL.md §6).
type Client struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	conn net.Conn
	cb   *observability.CircuitBreaker
}

// New constructs a Client with its own circuit breaker: after 3
// consecutive failures it opens for 30s before allowing another
// handshake attempt.
func New(host string, port int, database, username, password string) *Client {
	return &Client{
		Host: host, Port: port, Database: database, Username: username, Password: password,
		cb: observability.NewCircuitBreaker("jobserver", 3, 30*time.Second),
	}
}

// connect performs the full handshake: version exchange, magic bytes,
// nonce+MD5 auth, database name handshake (jobserver.cc's
// connectToJobserver).
func (c *Client) connect() error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), 5*time.Second)
	if err != nil {
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}

	var version int32
	if err := binary.Read(conn, binary.BigEndian, &version); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: reading version: %w", domain.ErrJobServer, err)
	}
	if version != ProtocolVersion {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: protocol version mismatch: got %d want %d",
			domain.ErrJobServer, version, ProtocolVersion)
	}
	if err := binary.Write(conn, binary.BigEndian, int32(ProtocolVersion)); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}
	if _, err := conn.Write([]byte(Magic)); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}

	var nonce int32
	if err := binary.Read(conn, binary.BigEndian, &nonce); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: reading nonce: %w", domain.ErrJobServer, err)
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%d%s%s", nonce, c.Username, c.Password)))
	if _, err := conn.Write(sum[:]); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}

	if err := binary.Write(conn, binary.BigEndian, int32(len(c.Database))); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}
	dbBytes := append([]byte(c.Database), 0) // NUL-terminated, matching database.c_str() length+1
	if _, err := conn.Write(dbBytes); err != nil {
		conn.Close()
		return fmt.Errorf("op=jobserverclient.connect: %w: %w", domain.ErrJobServer, err)
	}

	c.conn = conn
	return nil
}

func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}
	return c.connect()
}

// Close releases the underlying TCP connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// PossibleExperimentIDs asks the job-server for the set of experiment
// ids eligible for gridQueueID (function 0, jobserver.cc's
// getPossibleExperimentIds).
func (c *Client) PossibleExperimentIDs(gridQueueID int) ([]int, error) {
	var ids []int
	err := c.cb.Call(func() error {
		if err := c.ensureConnected(); err != nil {
			return err
		}
		if err := binary.Write(c.conn, binary.BigEndian, int16(funcPossibleExperimentIDs)); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		if err := binary.Write(c.conn, binary.BigEndian, int32(gridQueueID)); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		var size int32
		if err := binary.Read(c.conn, binary.BigEndian, &size); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		ids = make([]int, 0, size)
		for i := int32(0); i < size; i++ {
			var id int32
			if err := binary.Read(c.conn, binary.BigEndian, &id); err != nil {
				c.invalidate()
				return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
			}
			ids = append(ids, int(id))
		}
		return nil
	})
	return ids, err
}

// JobIDForExperiment asks the job-server to pick a job id for
// experimentID (function 1, jobserver.cc's getJobId). The returned id is
// advisory only: FetchAndLockJob still re-validates ownership against the
// DB (spec §9 "job-server advisory status").
func (c *Client) JobIDForExperiment(experimentID int) (int, error) {
	var jobID int32
	err := c.cb.Call(func() error {
		if err := c.ensureConnected(); err != nil {
			return err
		}
		if err := binary.Write(c.conn, binary.BigEndian, int16(funcJobIDForExperiment)); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		if err := binary.Write(c.conn, binary.BigEndian, int32(experimentID)); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		if err := binary.Read(c.conn, binary.BigEndian, &jobID); err != nil {
			c.invalidate()
			return fmt.Errorf("%w: %w", domain.ErrJobServer, err)
		}
		return nil
	})
	return int(jobID), err
}

func (c *Client) invalidate() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
}

// FormatIDs renders ids as a comma-separated string, matching the wire
// shape jobserver.cc's getPossibleExperimentIds builds internally before
// the rest of the client parses it.
func FormatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
