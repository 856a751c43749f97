// Package artifactstore implements the per-node artifact cache described
// in spec §4.2: fetch, cache, decompress, and MD5-verify solver and
// instance binaries on a shared filesystem, with cross-worker locking so
// only one worker downloads a given artifact at a time.
package artifactstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz/lzma"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// DownloadRefresh is how often a held lock's lastReport is bumped while a
// download is in flight. DownloadTimeout is how long a peer's lock may go
// without a refresh before it is considered stale and stealable (spec §4.2).
const (
	DownloadRefresh = 2 * time.Second
	DownloadTimeout = 10 * time.Second
)

// lzmaMagic is the first bytes of a standalone .lzma stream (props byte
// 0x5D, dict size, then an all-0xFF/size field); original_source detects
// this with a short magic-byte comparison before invoking its LZMA
// decoder.
var lzmaMagic = []byte{0x5D, 0x00, 0x00}

// Fetcher downloads artifact bytes given a content id; supplied by the
// caller since the wire format for "download this blob" is DB-specific
// and not part of this package's contract.
type Fetcher func(ctx context.Context, binaryID int) ([]byte, error)

// Store materializes solver and instance artifacts onto the local
// filesystem under BasePath/{solvers,instances}, guarded by the DB's
// FSDownloadLock rows via Methods.
type Store struct {
	Methods      domain.Methods
	BasePath     string
	FilesystemID int
	Fetch        Fetcher
}

// kind selects the target subdirectory and file mode per spec §4.2.
type kind int

const (
	KindInstance kind = iota
	KindSolver
)

func (k kind) dir() string {
	if k == KindSolver {
		return "solvers"
	}
	return "instances"
}

func (k kind) mode() os.FileMode {
	if k == KindSolver {
		return 0o777
	}
	return 0o666
}

// Acquire ensures the artifact identified by (binaryID, md5, name) is
// present and MD5-valid under BasePath, downloading and decompressing it
// if necessary, and returns its local path. Implements the algorithm of
// spec §4.2 steps 1-5.
func (s *Store) Acquire(ctx context.Context, k kind, binaryID int, md5Hex, name string) (string, error) {
	dir := filepath.Join(s.BasePath, k.dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("op=artifactstore.Acquire: %w: %w", domain.ErrFetch, err)
	}
	path := filepath.Join(dir, md5Hex+"_"+name)

	if matches, _ := md5Matches(path, md5Hex); matches {
		return path, nil
	}

	acquired, err := s.Methods.LockArtifact(ctx, binaryID, s.FilesystemID)
	if err != nil {
		return "", fmt.Errorf("op=artifactstore.Acquire: %w", err)
	}

	if !acquired {
		peerPath, err := s.waitForPeer(ctx, binaryID, path, md5Hex)
		if !errors.Is(err, domain.ErrLockTimeout) {
			return peerPath, err
		}
		// The peer's lock went stale and waitForPeer took it over: this
		// worker now holds the lock and downloads the artifact itself.
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.refresh(refreshCtx, binaryID)

	if err := s.download(ctx, binaryID, path, k.mode()); err != nil {
		_ = s.Methods.UnlockArtifact(ctx, binaryID, s.FilesystemID)
		return "", err
	}
	if err := s.Methods.UnlockArtifact(ctx, binaryID, s.FilesystemID); err != nil {
		return "", fmt.Errorf("op=artifactstore.Acquire: %w", err)
	}

	matches, err := md5Matches(path, md5Hex)
	if err != nil {
		return "", fmt.Errorf("op=artifactstore.Acquire: %w: %w", domain.ErrFetch, err)
	}
	if !matches {
		return "", fmt.Errorf("op=artifactstore.Acquire: %w: %s", domain.ErrIntegrity, path)
	}
	return path, nil
}

func (s *Store) refresh(ctx context.Context, binaryID int) {
	ticker := time.NewTicker(DownloadRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Methods.RefreshArtifactLock(ctx, binaryID, s.FilesystemID)
		}
	}
}

func (s *Store) waitForPeer(ctx context.Context, binaryID int, path, md5Hex string) (string, error) {
	deadline := time.Now().Add(DownloadTimeout)
	ticker := time.NewTicker(DownloadRefresh)
	defer ticker.Stop()
	for {
		if matches, _ := md5Matches(path, md5Hex); matches {
			return path, nil
		}
		if time.Now().After(deadline) {
			acquired, err := s.Methods.LockArtifact(ctx, binaryID, s.FilesystemID)
			if err != nil {
				return "", fmt.Errorf("op=artifactstore.waitForPeer: %w", err)
			}
			if acquired {
				return "", fmt.Errorf("op=artifactstore.waitForPeer: %w: peer lock went stale, retry acquire", domain.ErrLockTimeout)
			}
			deadline = time.Now().Add(DownloadTimeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Store) download(ctx context.Context, binaryID int, path string, mode os.FileMode) error {
	blob, err := s.Fetch(ctx, binaryID)
	if err != nil {
		return fmt.Errorf("op=artifactstore.download: %w: %w", domain.ErrFetch, err)
	}
	if isLZMA(blob) {
		decoded, err := decompressLZMA(blob)
		if err != nil {
			return fmt.Errorf("op=artifactstore.download: %w: %w", domain.ErrFetch, err)
		}
		blob = decoded
	}
	if err := os.WriteFile(path, blob, mode); err != nil {
		return fmt.Errorf("op=artifactstore.download: %w: %w", domain.ErrFetch, err)
	}
	return nil
}

func isLZMA(blob []byte) bool {
	return bytes.HasPrefix(blob, lzmaMagic)
}

func decompressLZMA(blob []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func md5Matches(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == want, nil
}
