package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// DataLock is an exclusive cross-process lock on a data directory. Only the
// holder may write the metadata database, the position table and the
// snapshot.
type DataLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataLock creates a lock at <dir>/.docindex.lock.
func NewDataLock(dir string) *DataLock {
	lockPath := filepath.Join(dir, ".docindex.lock")
	return &DataLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock acquires the lock without blocking. It fails with ErrDataLocked
// when another process holds it.
func (l *DataLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return dierrors.New(dierrors.ErrCodeDataLocked,
			"data directory is in use by another docindex process", nil).
			WithDetail("lock", l.path)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked DataLock is a no-op.
func (l *DataLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataLock) Path() string {
	return l.path
}
