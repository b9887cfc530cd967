// Package tempstore manages the per-request files an upload goes through.
package tempstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ekisa-team/voxpipe/internal/xfs"
)

const waveformExt = ".wav"

// Store hands out unique paths under a single directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created on first use.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Allocate returns a fresh upload path. Every call yields a distinct path.
func (s *Store) Allocate() (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("tempstore: failed to create %s: %w", s.dir, err)
	}

	return filepath.Join(s.dir, uuid.NewString()), nil
}

// Save writes r to path. The file must not exist yet.
// On failure the partially written file is left for Release.
func (s *Store) Save(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("tempstore: failed to create %s: %w", path, err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("tempstore: failed to write %s: %w", path, err)
	}

	return n, nil
}

// WaveformPath returns the path of the converted waveform belonging to an upload.
func (s *Store) WaveformPath(path string) string {
	return path + waveformExt
}

// Release removes path. Missing files are ignored and other failures are only logged.
func (s *Store) Release(path string) {
	if path == "" {
		return
	}

	if err := xfs.RemoveIfExists(path); err != nil {
		slog.Warn("Failed to remove temporary file", "path", path, "error", err)
		return
	}

	slog.Debug("Temporary file removed", "path", path)
}
