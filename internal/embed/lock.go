package embed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DownloadLock serializes concurrent first-use model downloads across
// processes sharing a store directory, so two daemons racing to warm an
// embedder don't both fetch the same model.
type DownloadLock struct {
	flock *flock.Flock
}

// NewDownloadLock returns a lock backed by <dir>/.embed-download.lock.
func NewDownloadLock(dir string) *DownloadLock {
	return &DownloadLock{flock: flock.New(filepath.Join(dir, ".embed-download.lock"))}
}

// Lock blocks until the exclusive lock is acquired, creating dir if needed.
func (l *DownloadLock) Lock() error {
	dir := filepath.Dir(l.flock.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire download lock: %w", err)
	}
	return nil
}

// Unlock releases the lock.
func (l *DownloadLock) Unlock() error {
	return l.flock.Unlock()
}
