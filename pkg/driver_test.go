package hashledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runInBase(t *testing.T, base string, opts RunOptions) (*Result, string, error) {
	t.Helper()
	opts.BaseDir = base
	if opts.LedgerPath != "" && !filepath.IsAbs(opts.LedgerPath) {
		opts.LedgerPath = filepath.Join(base, opts.LedgerPath)
	}
	if opts.FlushThreshold == 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	var out bytes.Buffer
	result, err := Run(context.Background(), opts, &out)
	return result, out.String(), err
}

func readLedgerFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunCreatesLedger(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{
		"photos/a.jpg": "a",
		"photos/b.jpg": "b",
	})

	result, notices, err := runInBase(t, base, RunOptions{LedgerPath: "files.md5", Folders: []string{"photos"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"photos/a.jpg", "photos/b.jpg"}, result.Added)
	assert.Equal(t, 2, result.Entries)

	want := fmt.Sprintf("%s photos/a.jpg\n%s photos/b.jpg\n", md5Of("a"), md5Of("b"))
	assert.Equal(t, want, readLedgerFile(t, filepath.Join(base, "files.md5")))

	resolved, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(notices), "\n")
	assert.Equal(t, "Parsing "+resolved, lines[0])
	assert.Equal(t, "Running with 0 threads", lines[1])
}

func TestRunSecondPassChangesNothing(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/x": "x", "d/y": "y"})
	ledgerPath := filepath.Join(base, "ledger")

	_, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}})
	require.NoError(t, err)
	first := readLedgerFile(t, ledgerPath)
	info1, err := os.Stat(ledgerPath)
	require.NoError(t, err)

	result, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Workers: 3})
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Equal(t, first, readLedgerFile(t, ledgerPath))

	info2, err := os.Stat(ledgerPath)
	require.NoError(t, err)
	assert.True(t, os.SameFile(info1, info2), "an unchanged ledger is not rewritten")
}

func TestRunCheckReportsMismatch(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/x": "x"})
	ledgerPath := filepath.Join(base, "ledger")

	_, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}})
	require.NoError(t, err)
	before := readLedgerFile(t, ledgerPath)

	writeTree(t, base, map[string]string{"d/x": "tampered"})

	result, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Policy: PolicyCheck})
	require.NoError(t, err)
	assert.True(t, result.Mismatch)
	assert.Equal(t, before, readLedgerFile(t, ledgerPath), "check never rewrites the ledger")

	result, _, err = runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Policy: PolicyUpdate})
	require.NoError(t, err)
	assert.False(t, result.Mismatch)
	assert.Equal(t, md5Of("tampered")+" d/x\n", readLedgerFile(t, ledgerPath))
}

func TestRunPrunesRemovedFiles(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/keep": "k", "d/gone": "g"})
	ledgerPath := filepath.Join(base, "ledger")

	_, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(base, "d", "gone")))

	// Without pruning the stale entry survives
	result, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}})
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Contains(t, readLedgerFile(t, ledgerPath), " d/gone\n")

	result, notices, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, RemoveOld: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/gone"}, result.Removed)
	assert.Contains(t, notices, "Removing d/gone\n")
	assert.Equal(t, md5Of("k")+" d/keep\n", readLedgerFile(t, ledgerPath))
}

func TestRunLedgerInsideScannedFolder(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"a": "1", "b": "2"})

	result, _, err := runInBase(t, base, RunOptions{LedgerPath: "files.md5", Folders: []string{"."}, RemoveOld: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.Added)

	// The ledger and its lock file never show up as content
	result, _, err = runInBase(t, base, RunOptions{LedgerPath: "files.md5", Folders: []string{"."}, RemoveOld: true})
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
}

func TestRunFailureDoesNotSave(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/a": "1", "d/bad": "2"})
	ledgerPath := filepath.Join(base, "ledger")

	cs := newCountingChecksummer(t, "bad")
	_, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Checksummer: cs})
	require.Error(t, err)

	_, statErr := os.Stat(ledgerPath)
	assert.True(t, os.IsNotExist(statErr), "a failed run leaves no ledger behind")
}

func TestRunContinueSavesGoodPaths(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/a": "1", "d/bad": "2"})
	ledgerPath := filepath.Join(base, "ledger")
	SetLogOutput(&bytes.Buffer{})

	cs := newCountingChecksummer(t, "bad")
	result, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Checksummer: cs, ErrorPolicy: ErrorContinue})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/bad"}, result.Failed)
	assert.Equal(t, md5Of("1")+" d/a\n", readLedgerFile(t, ledgerPath))
}

func TestRunCancelledSavesProgress(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/a": "1", "d/b": "2", "d/c": "3"})
	ledgerPath := filepath.Join(base, "ledger")

	ctx, cancel := context.WithCancel(context.Background())
	cs := &cancellingChecksummer{inner: newCountingChecksummer(t), cancel: cancel, after: 2}

	result, err := Run(ctx, RunOptions{
		LedgerPath:     ledgerPath,
		Folders:        []string{"d"},
		BaseDir:        base,
		FlushThreshold: DefaultFlushThreshold,
		Checksummer:    cs,
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, fmt.Sprintf("%s d/a\n%s d/b\n", md5Of("1"), md5Of("2")), readLedgerFile(t, ledgerPath))
}

// cancellingChecksummer cancels the run once it has hashed `after` files
type cancellingChecksummer struct {
	inner  Checksummer
	cancel context.CancelFunc
	after  int
	seen   int
}

func (c *cancellingChecksummer) Checksum(absPath string) (string, error) {
	c.seen++
	if c.seen == c.after {
		c.cancel()
	}
	return c.inner.Checksum(absPath)
}

func TestRunRejectsLockedLedger(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/a": "1"})
	ledgerPath := filepath.Join(base, "ledger")

	lock, err := AcquireRunLock(ledgerPath)
	require.NoError(t, err)
	defer lock.Release()

	_, _, err = runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLedgerLocked))
}

func TestRunRejectsFileAsFolder(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"plain": "1"})

	_, _, err := runInBase(t, base, RunOptions{LedgerPath: "ledger", Folders: []string{"plain"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDirectory))
}

func TestRunLoadsLegacyLedgerWithoutTrailingNewline(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base, map[string]string{"d/a": "1", "d/b": "2"})
	ledgerPath := filepath.Join(base, "ledger")
	legacy := fmt.Sprintf("%s d/a\n%s d/b", md5Of("1"), md5Of("2"))
	require.NoError(t, os.WriteFile(ledgerPath, []byte(legacy), 0644))

	result, _, err := runInBase(t, base, RunOptions{LedgerPath: ledgerPath, Folders: []string{"d"}, Policy: PolicyCheck})
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.False(t, result.Mismatch)
	assert.Equal(t, legacy, readLedgerFile(t, ledgerPath), "a ledger without pending changes is left untouched")
}
