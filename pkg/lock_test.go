package hashledger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLockExcludesSecondRun(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "files.md5")

	first, err := AcquireRunLock(ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, ledgerPath+LockSuffix, first.Path())

	_, err = AcquireRunLock(ledgerPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLedgerLocked), "expected ErrLedgerLocked, got %v", err)

	require.NoError(t, first.Release())

	second, err := AcquireRunLock(ledgerPath)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestRunLockReleaseIsIdempotent(t *testing.T) {
	lock, err := AcquireRunLock(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	var nilLock *RunLock
	assert.NoError(t, nilLock.Release())
}

func TestRunLockMissingDirectory(t *testing.T) {
	_, err := AcquireRunLock(filepath.Join(t.TempDir(), "no", "such", "dir", "ledger"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrLedgerLocked))
}
