package hashledger

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLedgerLocked is returned when another run holds the ledger's lock file
var ErrLedgerLocked = errors.New("ledger is locked by another run")

// RunLock is an exclusive advisory lock on <ledger>.lock
type RunLock struct {
	path string
	file *os.File
}

// AcquireRunLock takes the run lock for ledgerPath without waiting
func AcquireRunLock(ledgerPath string) (*RunLock, error) {
	lockPath := ledgerPath + LockSuffix

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, lockPath)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}

	debugLog("lock", "acquired %s", lockPath)
	return &RunLock{path: lockPath, file: file}, nil
}

// Path returns the lock file path
func (l *RunLock) Path() string {
	return l.path
}

// Release drops the lock. The lock file itself is left in place.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	debugLog("lock", "released %s", l.path)
	return err
}
