package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockFileName is the per-lead lock file inside the lead directory.
const lockFileName = ".lock"

// LeadLocker hands out exclusive per-lead locks backed by flock on
// <dataDir>/<lead>/.lock. Locks for different leads never contend.
type LeadLocker struct {
	dataDir string
}

// NewLeadLocker creates a LeadLocker rooted at dataDir.
func NewLeadLocker(dataDir string) *LeadLocker {
	return &LeadLocker{dataDir: dataDir}
}

// Lock blocks until the lead's lock is held and returns the function that
// releases it.
func (l *LeadLocker) Lock(leadID string) (unlock func() error, err error) {
	dir := filepath.Join(l.dataDir, leadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lead directory: %w", err)
	}
	return lockFile(filepath.Join(dir, lockFileName))
}

// lockFile acquires an exclusive file lock (LOCK_EX) on the given file path.
// It returns an unlock function that must be called to release the lock.
// syscall.Flock is Unix-specific.
func lockFile(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
