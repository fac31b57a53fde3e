package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the writer lock.
var ErrLocked = errors.New("store is locked by another writer")

// WriterLock gives one process exclusive write access to a store file.
// It uses gofrs/flock so it works across processes on all platforms.
type WriterLock struct {
	path  string
	flock *flock.Flock
}

// AcquireWriterLock takes the lock for the store at storePath without blocking.
// The lock file lives next to the store as <storePath>.lock.
func AcquireWriterLock(storePath string) (*WriterLock, error) {
	lockPath := storePath + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%s: %w", storePath, ErrLocked)
	}

	return &WriterLock{path: lockPath, flock: fl}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *WriterLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.flock = nil
	return nil
}

// Path returns the lock file path.
func (l *WriterLock) Path() string {
	return l.path
}

// WriterActive reports whether another process currently holds the writer
// lock for the store at storePath. It never creates the lock file.
func WriterActive(storePath string) (bool, error) {
	lockPath := storePath + ".lock"
	if _, err := os.Stat(lockPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat lock: %w", err)
	}

	fl := flock.New(lockPath)
	acquired, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to test lock: %w", err)
	}
	if !acquired {
		return true, nil
	}
	if err := fl.Unlock(); err != nil {
		return false, fmt.Errorf("failed to release test lock: %w", err)
	}
	return false, nil
}
