// Package hashledger keeps a flat text ledger mapping relative file paths to content
// digests, so later runs can detect files that were added, changed or removed.
//
// # Core API
//
// Run performs a complete pass: discover files, reconcile the ledger, prune, save.
//
//	result, err := hashledger.Run(ctx, hashledger.RunOptions{
//		LedgerPath: "files.md5",
//		Folders:    []string{"photos", "docs"},
//		Policy:     hashledger.PolicyCheck,
//		Workers:    4,
//	}, os.Stdout)
//	if result != nil && result.Mismatch {
//		// a file no longer matches its recorded digest
//	}
//
// The pieces are usable on their own: Discover builds a PathSet, LoadLedger and
// ParseLedger read a Ledger, and a Reconciler applies one ExistingPolicy to every
// path with an optional worker pool.
//
// # Ledger format
//
// One "<digest> <path>" record per line, sorted by path. Paths are relative to the
// base directory and slash separated. Saves go through a temporary file that
// replaces the ledger, so readers never see a half-written file.
//
// # Configuration
//
// Settings come from an INI file (see LoadConfig) and command-line overrides:
//
//	hashledger.SetDebugFlags("ledger,flush")
//	hashledger.SetVerboseLevel(2)
package hashledger
