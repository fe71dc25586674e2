package hashledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// RunOptions configures one complete run
type RunOptions struct {
	LedgerPath      string
	Folders         []string
	BaseDir         string // Defaults to the working directory
	Policy          ExistingPolicy
	Workers         int
	RemoveOld       bool
	IncludeDotFiles bool
	Symlinks        string
	Ignore          *IgnoreManager
	FlushThreshold  int
	ErrorPolicy     ErrorPolicy
	Checksummer     Checksummer // Defaults to md5 with an 80K buffer
}

// Run discovers files, reconciles the ledger against them, optionally prunes stale
// entries and saves. Operator notices are written to out.
//
// A failed run is not saved beyond the flushes it already made. A cancelled run
// saves whatever was recorded before it stopped.
func Run(ctx context.Context, opts RunOptions, out io.Writer) (*Result, error) {
	defer VerboseEnter()()

	notifier := NewNotifier(out)

	baseDir, err := resolveBaseDir(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	notifier.Notice("Parsing %s", baseDir)

	ledgerPath, err := filepath.Abs(opts.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ledger path %s: %w", opts.LedgerPath, err)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(ledgerPath)); err == nil {
		ledgerPath = filepath.Join(dir, filepath.Base(ledgerPath))
	}

	checksummer := opts.Checksummer
	if checksummer == nil {
		bufferSize, _ := ParseHumanSize(DefaultHashBuffer)
		if checksummer, err = NewFileChecksummer(DefaultHashAlgorithm, bufferSize); err != nil {
			return nil, err
		}
	}

	paths, err := Discover(DiscoverOptions{
		BaseDir:         baseDir,
		Folders:         opts.Folders,
		IncludeDotFiles: opts.IncludeDotFiles,
		Symlinks:        opts.Symlinks,
		Ignore:          opts.Ignore,
		LedgerPath:      ledgerPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	lock, err := AcquireRunLock(ledgerPath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ledger, err := openLedger(ledgerPath)
	if err != nil {
		return nil, err
	}

	notifier.Notice("Running with %d threads", opts.Workers)

	reconciler := NewReconciler(ReconcileOptions{
		Policy:         opts.Policy,
		Workers:        opts.Workers,
		FlushThreshold: opts.FlushThreshold,
		LedgerPath:     ledgerPath,
		BaseDir:        baseDir,
		ErrorPolicy:    opts.ErrorPolicy,
	}, checksummer, notifier)

	result, err := reconciler.Reconcile(ctx, paths, ledger)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		Warnf("run interrupted, saving %d pending changes", ledger.ChangeCount())
		if ledger.HasChanges() {
			if saveErr := ledger.Save(ledgerPath); saveErr != nil {
				return result, fmt.Errorf("failed to save ledger after interrupt: %w", saveErr)
			}
		}
		result.Entries = ledger.Len()
		return result, err
	}

	if opts.RemoveOld {
		ledger.Prune(paths, func(path string) {
			notifier.Notice("Removing %s", path)
			result.Removed = append(result.Removed, path)
		})
		sort.Strings(result.Removed)
	}

	if ledger.HasChanges() {
		if err := ledger.Save(ledgerPath); err != nil {
			return result, fmt.Errorf("failed to save ledger: %w", err)
		}
	}

	result.Entries = ledger.Len()
	VerboseLog(1, "Ledger %s holds %d entries", ledgerPath, result.Entries)
	return result, nil
}

// resolveBaseDir returns the absolute, symlink-free form of dir (or the working directory)
func resolveBaseDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory %s: %w", dir, err)
	}
	return resolved, nil
}

// openLedger loads path, or returns an empty ledger if it does not exist yet
func openLedger(path string) (*Ledger, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		VerboseLog(1, "Ledger %s does not exist, starting empty", path)
		return NewLedger(), nil
	}
	return LoadLedger(path)
}
