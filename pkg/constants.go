package hashledger

import "strings"

// Skiplist context constants for ledger entries
const (
	LoadedContext   = "loaded"   // Entry came from the ledger file
	RecordedContext = "recorded" // Entry was written during this run
)

// File constants
const (
	LockSuffix     = ".lock"
	TempFilePrefix = "tmp-%d-%d-" // pid, unix nanos
	ConfigDirName  = "hashledger"
	ConfigFileName = "config.ini"
)

// Ledger constants
const (
	DefaultFlushThreshold = 10    // Pending changes tolerated before an opportunistic flush
	DefaultHashBuffer     = "80K" // Read buffer used while hashing
	DefaultHashAlgorithm  = "md5"
	skiplistMaxLevels     = 16
	iovMax                = 1024 // Linux UIO_MAXIOV
)

// ExistingPolicy selects what happens to paths already present in the ledger
type ExistingPolicy int

const (
	PolicyNothing ExistingPolicy = iota // Trust the ledger, do not rehash
	PolicyCheck                         // Rehash and report drift, never rewrite
	PolicyUpdate                        // Rehash and overwrite drifted digests
)

// String returns the CLI name of the policy
func (p ExistingPolicy) String() string {
	switch p {
	case PolicyNothing:
		return "nothing"
	case PolicyCheck:
		return "check"
	case PolicyUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// ParseExistingPolicy parses a policy name (case-insensitive)
func ParseExistingPolicy(name string) (ExistingPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nothing":
		return PolicyNothing, true
	case "check":
		return PolicyCheck, true
	case "update":
		return PolicyUpdate, true
	default:
		return PolicyNothing, false
	}
}

// ErrorPolicy selects how per-path hashing failures are handled
type ErrorPolicy int

const (
	ErrorAbort    ErrorPolicy = iota // First failure stops the run
	ErrorContinue                    // Failures are collected and the run goes on
)

// String returns the config name of the error policy
func (p ErrorPolicy) String() string {
	if p == ErrorContinue {
		return "continue"
	}
	return "abort"
}

// ParseErrorPolicy parses an error policy name (case-insensitive)
func ParseErrorPolicy(name string) (ErrorPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "abort":
		return ErrorAbort, true
	case "continue":
		return ErrorContinue, true
	default:
		return ErrorAbort, false
	}
}

// Symlink handling modes used during discovery
const (
	SymlinksAll       = "all"       // Follow every symlink
	SymlinksContained = "contained" // Follow symlinks whose target stays under the base directory
	SymlinksNone      = "none"      // Skip symlinks entirely
)
