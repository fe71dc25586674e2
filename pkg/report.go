package hashledger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// PathError records a per-path failure
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Mismatch describes a path whose content no longer matches its recorded digest
type Mismatch struct {
	Path string `json:"path"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// Result summarises one run
type Result struct {
	Added      []string   `json:"added"`
	Updated    []string   `json:"updated"`
	Mismatched []Mismatch `json:"mismatched"`
	Removed    []string   `json:"removed"`
	Failed     []string   `json:"failed"`
	Flushes    int        `json:"flushes"`
	Mismatch   bool       `json:"mismatch"` // A mismatch was seen under the check policy
	Entries    int        `json:"entries"`  // Ledger size at the end of the run

	errors []*PathError
}

func newResult() *Result {
	return &Result{
		Added:      make([]string, 0),
		Updated:    make([]string, 0),
		Mismatched: make([]Mismatch, 0),
		Removed:    make([]string, 0),
		Failed:     make([]string, 0),
	}
}

// Errors returns the per-path failures collected under the continue policy
func (r *Result) Errors() []*PathError {
	return r.errors
}

// sort orders every list by path so results do not depend on worker interleaving
func (r *Result) sort() {
	sort.Strings(r.Added)
	sort.Strings(r.Updated)
	sort.Strings(r.Removed)
	sort.Strings(r.Failed)
	sort.Slice(r.Mismatched, func(i, j int) bool {
		return r.Mismatched[i].Path < r.Mismatched[j].Path
	})
	sort.Slice(r.errors, func(i, j int) bool {
		return r.errors[i].Path < r.errors[j].Path
	})
}

// WriteSummary writes the result in the given format (human or json)
func (r *Result) WriteSummary(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "human", "":
		_, err := fmt.Fprintf(w, "Summary: %d added, %d updated, %d mismatched, %d removed, %d failed, %d flushes, %d entries\n",
			len(r.Added), len(r.Updated), len(r.Mismatched), len(r.Removed), len(r.Failed), r.Flushes, r.Entries)
		if err != nil {
			return err
		}
		for _, pe := range r.errors {
			if _, err := fmt.Fprintf(w, "  failed: %v\n", pe); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Notifier writes operator notices, one line each. It is safe for concurrent use.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewNotifier returns a Notifier writing to out; a nil out discards notices
func NewNotifier(out io.Writer) *Notifier {
	if out == nil {
		out = io.Discard
	}
	return &Notifier{out: out}
}

// Notice writes one formatted line
func (n *Notifier) Notice(format string, args ...interface{}) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, format+"\n", args...)
}
