package hashledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ReconcileOptions controls one reconciliation pass
type ReconcileOptions struct {
	Policy         ExistingPolicy
	Workers        int    // 0 processes every path on the calling goroutine
	FlushThreshold int    // Save once pending changes exceed this; negative disables mid-run saves
	LedgerPath     string // Destination of mid-run saves; empty disables them
	BaseDir        string // Directory the ledger's relative paths resolve against
	ErrorPolicy    ErrorPolicy
}

// Reconciler brings a Ledger in line with a discovered path set
type Reconciler struct {
	opts        ReconcileOptions
	checksummer Checksummer
	notifier    *Notifier

	// saveLedger performs mid-run saves
	saveLedger func(l *Ledger, dest string) error
}

// NewReconciler creates a reconciler
func NewReconciler(opts ReconcileOptions, checksummer Checksummer, notifier *Notifier) *Reconciler {
	return &Reconciler{
		opts:        opts,
		checksummer: checksummer,
		notifier:    notifier,
		saveLedger: func(l *Ledger, dest string) error {
			return l.Save(dest)
		},
	}
}

// runState is shared by every worker for the duration of one Reconcile call
type runState struct {
	queue *workQueue

	ledgerMu sync.Mutex
	ledger   *Ledger

	mismatch atomic.Bool

	resultMu sync.Mutex
	result   *Result
}

// Reconcile processes every path in paths against ledger.
// Under ErrorAbort the first failure stops the run and is returned with the partial result.
// Cancelling ctx stops workers between paths and returns ctx's error.
func (r *Reconciler) Reconcile(ctx context.Context, paths *PathSet, ledger *Ledger) (*Result, error) {
	defer VerboseEnter()()

	state := &runState{
		queue:  newWorkQueue(paths.Paths()),
		ledger: ledger,
		result: newResult(),
	}

	var err error
	if r.opts.Workers <= 0 {
		err = r.drain(ctx, state)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < r.opts.Workers; i++ {
			g.Go(func() error {
				return r.drain(gctx, state)
			})
		}
		err = g.Wait()
	}

	result := state.result
	result.Mismatch = state.mismatch.Load()
	result.Entries = ledger.Len()
	result.sort()

	if err != nil {
		debugLog("engine", "reconcile stopped with %d paths left: %v", state.queue.remaining(), err)
		return result, err
	}
	return result, nil
}

// drain pops and processes paths until the queue is empty, ctx is done or a path fails
func (r *Reconciler) drain(ctx context.Context, state *runState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, ok := state.queue.pop()
		if !ok {
			return nil
		}
		if err := r.processPath(state, path); err != nil {
			return err
		}
	}
}

// processPath applies the add, skip, check or update action to one path.
// The ledger lock is held to read the digest and again to write, never while hashing.
func (r *Reconciler) processPath(state *runState, path string) error {
	absPath := filepath.Join(r.opts.BaseDir, filepath.FromSlash(path))

	state.ledgerMu.Lock()
	oldDigest, known := state.ledger.Digest(path)
	state.ledgerMu.Unlock()

	if !known {
		r.notifier.Notice("Starting %s", absPath)
		digest, err := r.checksummer.Checksum(absPath)
		if err != nil {
			return r.fail(state, path, err)
		}

		state.ledgerMu.Lock()
		defer state.ledgerMu.Unlock()
		state.ledger.Record(path, digest)
		r.notifier.Notice("Adding %s - %s!", path, digest)
		r.addResult(state, func(res *Result) { res.Added = append(res.Added, path) })
		return r.maybeFlush(state)
	}

	if r.opts.Policy == PolicyNothing {
		state.ledgerMu.Lock()
		defer state.ledgerMu.Unlock()
		return r.maybeFlush(state)
	}

	r.notifier.Notice("Computing %s", path)
	newDigest, err := r.checksummer.Checksum(absPath)
	if err != nil {
		return r.fail(state, path, err)
	}

	state.ledgerMu.Lock()
	defer state.ledgerMu.Unlock()

	if newDigest != oldDigest {
		r.notifier.Notice("  Mismatch in hash for %s => old %s, new %s", path, oldDigest, newDigest)
		r.addResult(state, func(res *Result) {
			res.Mismatched = append(res.Mismatched, Mismatch{Path: path, Old: oldDigest, New: newDigest})
		})

		switch r.opts.Policy {
		case PolicyCheck:
			state.mismatch.Store(true)
		case PolicyUpdate:
			state.ledger.Record(path, newDigest)
			r.notifier.Notice("  Updating! %s - %s!", path, newDigest)
			r.addResult(state, func(res *Result) { res.Updated = append(res.Updated, path) })
		}
	}

	return r.maybeFlush(state)
}

// maybeFlush saves the ledger once pending changes exceed the threshold. Caller holds ledgerMu.
func (r *Reconciler) maybeFlush(state *runState) error {
	if r.opts.LedgerPath == "" || r.opts.FlushThreshold < 0 {
		return nil
	}
	changes := state.ledger.ChangeCount()
	if changes <= r.opts.FlushThreshold {
		return nil
	}

	debugLog("flush", "flushing %d changes to %s", changes, r.opts.LedgerPath)
	if err := r.saveLedger(state.ledger, r.opts.LedgerPath); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	r.addResult(state, func(res *Result) { res.Flushes++ })
	return nil
}

// fail applies the error policy to a per-path failure
func (r *Reconciler) fail(state *runState, path string, err error) error {
	pe := &PathError{Path: path, Err: err}
	if r.opts.ErrorPolicy != ErrorContinue {
		return pe
	}

	Warnf("skipping %s: %v", path, err)
	r.addResult(state, func(res *Result) {
		res.Failed = append(res.Failed, path)
		res.errors = append(res.errors, pe)
	})
	return nil
}

func (r *Reconciler) addResult(state *runState, update func(res *Result)) {
	state.resultMu.Lock()
	defer state.resultMu.Unlock()
	update(state.result)
}
