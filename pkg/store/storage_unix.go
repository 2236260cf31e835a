//go:build !windows

package store

import (
	"fmt"
	"os"
	"syscall"
)

// acquireFileLock takes an exclusive flock on the lock file, blocking until
// another process releases it.
func (s *storage) acquireFileLock() (*os.File, error) {
	if err := ensureDir(s.lockPath); err != nil {
		return nil, err
	}

	lockFile, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}
	return lockFile, nil
}

func (s *storage) releaseFileLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	lockFile.Close()
}
