package hashledger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/vectorio"
	zcsl "github.com/mattkeenan/zerocopyskiplist"
	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// ledgerEntry is one path to digest record
type ledgerEntry struct {
	Path   string
	Digest string
}

// Ledger is the in-memory path to digest mapping plus a count of changes since the last save.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	entries *zcsl.ZeroCopySkiplist[ledgerEntry, string, string]
	changes int
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	getKey := func(e *ledgerEntry) string {
		return e.Path
	}
	getSize := func(e *ledgerEntry) int {
		return len(e.Digest) + 1 + len(e.Path) + 1
	}
	cmpKey := func(a, b string) int {
		return strings.Compare(a, b)
	}

	return &Ledger{
		entries: zcsl.MakeZeroCopySkiplist[ledgerEntry, string, string](
			skiplistMaxLevels,
			getKey,
			getSize,
			cmpKey,
		),
	}
}

// LoadLedger reads a ledger file. The file is mapped read-only and parsed in place.
func LoadLedger(path string) (*Ledger, error) {
	defer VerboseEnter()()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ledger %s: %w", path, err)
	}
	if stat.Size() == 0 {
		return NewLedger(), nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap ledger %s: %w", path, err)
	}
	defer unix.Munmap(data)

	ledger, err := ParseLedger(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}

	VerboseLog(2, "Loaded %d ledger entries from %s", ledger.Len(), path)
	return ledger, nil
}

// ParseLedger reads "<digest> <path>" lines. Each line is trimmed and split at the
// first space; blank lines and lines without a space are skipped.
// The result has no pending changes.
func ParseLedger(r io.Reader) (*Ledger, error) {
	ledger := NewLedger()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		digest, path, ok := strings.Cut(line, " ")
		if !ok {
			if line != "" {
				debugLog("ledger", "skipping malformed line %d: %q", lineNum, line)
			}
			continue
		}
		ledger.put(path, digest, LoadedContext)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	ledger.changes = 0
	return ledger, nil
}

// put inserts or overwrites path without touching the change counter
func (l *Ledger) put(path, digest, context string) {
	if node, _ := l.entries.Find(path); node != nil {
		l.entries.Delete(path)
	}
	l.entries.Insert(&ledgerEntry{Path: path, Digest: digest}, context)
}

// Digest returns the recorded digest for path
func (l *Ledger) Digest(path string) (string, bool) {
	node, _ := l.entries.Find(path)
	if node == nil {
		return "", false
	}
	return node.Item().Digest, true
}

// Record inserts or overwrites the digest for path. Every call counts as one change,
// including an overwrite with the same digest.
func (l *Ledger) Record(path, digest string) {
	l.put(path, digest, RecordedContext)
	l.changes++
	debugLog("ledger", "record %s %s (changes=%d)", digest, path, l.changes)
}

// Prune removes every entry whose path is not in keep, counting one change per removal.
// notify, if set, is called with each removed path. Returns the number of entries removed.
func (l *Ledger) Prune(keep *PathSet, notify func(path string)) int {
	var stale []string
	for node := l.entries.First(); node != nil; node = node.Next() {
		if path := node.Item().Path; !keep.Contains(path) {
			stale = append(stale, path)
		}
	}

	for _, path := range stale {
		if !l.entries.Delete(path) {
			continue
		}
		l.changes++
		if notify != nil {
			notify(path)
		}
	}

	return len(stale)
}

// HasChanges reports whether the ledger differs from what was last saved or loaded
func (l *Ledger) HasChanges() bool {
	return l.changes != 0
}

// ChangeCount returns the number of changes since the last save
func (l *Ledger) ChangeCount() int {
	return l.changes
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return l.entries.Length()
}

// Paths returns every recorded path in ascending order
func (l *Ledger) Paths() []string {
	paths := make([]string, 0, l.Len())
	for node := l.entries.First(); node != nil; node = node.Next() {
		paths = append(paths, node.Item().Path)
	}
	return paths
}

// Entries returns a path to digest copy of the ledger
func (l *Ledger) Entries() map[string]string {
	out := make(map[string]string, l.Len())
	for node := l.entries.First(); node != nil; node = node.Next() {
		entry := node.Item()
		out[entry.Path] = entry.Digest
	}
	return out
}

// Save writes the full ledger, sorted by path, to dest and resets the change counter.
// The snapshot goes to a temporary file in dest's directory which then replaces dest.
func (l *Ledger) Save(dest string) error {
	defer VerboseEnter()()

	tempPath := tempFileName(dest)
	if err := l.writeSnapshot(tempPath); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := atomic.ReplaceFile(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace ledger %s: %w", dest, err)
	}

	debugLog("flush", "saved %d entries to %s (%d changes)", l.Len(), dest, l.changes)
	l.changes = 0
	return nil
}

// writeSnapshot writes one "<digest> <path>\n" record per entry with vectored writes
func (l *Ledger) writeSnapshot(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp ledger %s: %w", path, err)
	}
	defer file.Close()

	records := l.records()
	iovecs := make([]syscall.Iovec, len(records))
	total := 0
	for i, rec := range records {
		iovecs[i].Base = &rec[0]
		iovecs[i].SetLen(len(rec))
		total += len(rec)
	}

	written := 0
	for offset := 0; offset < len(iovecs); offset += iovMax {
		end := offset + iovMax
		if end > len(iovecs) {
			end = len(iovecs)
		}

		nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs[offset:end])
		if err != nil {
			return fmt.Errorf("failed to write ledger records: %w", err)
		}
		written += nw

		// writev may stop short; finish the chunk with plain writes
		if want := chunkLen(records[offset:end]); nw < want {
			rest := bytes.Join(records[offset:end], nil)[nw:]
			n, err := file.Write(rest)
			if err != nil {
				return fmt.Errorf("failed to write ledger records: %w", err)
			}
			written += n
		}
	}
	runtime.KeepAlive(records)

	if written != total {
		return fmt.Errorf("ledger write incomplete: wrote %d bytes, expected %d", written, total)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp ledger: %w", err)
	}
	return file.Close()
}

// records renders each entry in path order
func (l *Ledger) records() [][]byte {
	records := make([][]byte, 0, l.Len())
	for node := l.entries.First(); node != nil; node = node.Next() {
		entry := node.Item()
		rec := make([]byte, 0, len(entry.Digest)+len(entry.Path)+2)
		rec = append(rec, entry.Digest...)
		rec = append(rec, ' ')
		rec = append(rec, entry.Path...)
		rec = append(rec, '\n')
		records = append(records, rec)
	}
	return records
}

func chunkLen(records [][]byte) int {
	n := 0
	for _, rec := range records {
		n += len(rec)
	}
	return n
}

// tempFileName names a temporary file next to dest
func tempFileName(dest string) string {
	name := fmt.Sprintf(TempFilePrefix, os.Getpid(), time.Now().UnixNano()) + filepath.Base(dest)
	return filepath.Join(filepath.Dir(dest), name)
}
