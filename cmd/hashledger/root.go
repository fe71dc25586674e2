package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	hashledger "github.com/mattkeenan/hashledger/pkg"
)

// cliOptions holds the raw flag values
type cliOptions struct {
	folders         []string
	removeOld       bool
	existing        string
	includeDotFiles bool
	processes       int
	verbosity       int
	debug           string
	configPath      string
	hash            string
	flushThreshold  int
	onError         string
	symlinks        string
	format          string
}

// flagOverrides maps flag names onto config override keys
var flagOverrides = map[string]string{
	"remove-old-entries": "remove_old",
	"existing":           "existing",
	"include-dot-files":  "include_dot_files",
	"processes":          "workers",
	"verbose":            "level",
	"debug":              "debug",
	"hash":               "hash",
	"flush-threshold":    "flush_threshold",
	"on-error":           "on_error",
	"symlinks":           "symlinks",
	"format":             "format",
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "hashledger [flags] <ledger-file>",
		Short: "Record and verify content digests of files under a set of folders",
		Long: `hashledger keeps a flat text ledger of "<digest> <path>" lines for every file
under the given folders. New files are added on each run; existing files can be
left alone, checked against their recorded digest, or updated. Entries for files
that no longer exist can be pruned.

Exit status is 0 on success, 1 if a mismatch was found with --existing check,
and 2 on any other error.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(cmd, opts, args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.folders, "folders", "f", nil, "Folders to include, relative to the working directory (repeatable)")
	flags.BoolVarP(&opts.removeOld, "remove-old-entries", "r", false, "Remove entries for files that no longer exist")
	flags.StringVarP(&opts.existing, "existing", "e", "nothing", "What to do with files already in the ledger: nothing, check, update")
	flags.BoolVarP(&opts.includeDotFiles, "include-dot-files", "i", false, "Include files and folders that start with a dot")
	flags.IntVarP(&opts.processes, "processes", "p", 0, "Number of hashing workers (0 hashes on the main goroutine)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	flags.StringVar(&opts.debug, "debug", "", "Comma separated debug flags: scan, ledger, engine, flush, lock")
	flags.StringVar(&opts.configPath, "config", "", "Config file (default "+hashledger.DefaultConfigPath()+")")
	flags.StringVar(&opts.hash, "hash", hashledger.DefaultHashAlgorithm, "Hash algorithm: md5, sha1, sha256, sha512")
	flags.IntVar(&opts.flushThreshold, "flush-threshold", hashledger.DefaultFlushThreshold, "Save the ledger mid-run once this many changes are pending")
	flags.StringVar(&opts.onError, "on-error", "abort", "Per-file read failures: abort, continue")
	flags.StringVar(&opts.symlinks, "symlinks", hashledger.SymlinksAll, "Symlink handling: all, contained, none")
	flags.StringVar(&opts.format, "format", "human", "Summary format: human, json")

	return cmd
}

// collectOverrides turns every explicitly set flag into a config override
func collectOverrides(flags *pflag.FlagSet) []string {
	var overrides []string
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagOverrides[f.Name]
		if !ok {
			return
		}
		value := f.Value.String()
		if f.Name == "verbose" {
			if n, err := strconv.Atoi(value); err == nil && n > 3 {
				value = "3"
			}
		}
		overrides = append(overrides, fmt.Sprintf("%s:%s", key, value))
	})
	return overrides
}

// runLedger merges configuration, runs the ledger update and reports the outcome
func runLedger(cmd *cobra.Command, opts *cliOptions, ledgerPath string, stdout, stderr io.Writer) error {
	if len(opts.folders) == 0 {
		return &exitError{code: 2, err: fmt.Errorf("at least one folder is required (-f)")}
	}

	cfg, err := hashledger.LoadConfig(opts.configPath)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	if err := cfg.ApplyOverrides(collectOverrides(cmd.Flags())); err != nil {
		return &exitError{code: 2, err: err}
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: 2, err: err}
	}
	all := cfg.GetAllConfig()

	hashledger.SetLogOutput(stderr)
	hashledger.SetVerboseLevel(all.Verbose.Level)
	hashledger.SetDebugFlags(all.Verbose.Debug)
	hashledger.Logger().Debug().Str("config", cfg.Path()).Msg("configuration loaded")

	runOpts, err := buildRunOptions(all, opts.folders, ledgerPath)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	// Keep stdout clean for the JSON summary
	format := strings.ToLower(all.Output.Format)
	notices := stdout
	if format == "json" {
		notices = stderr
	}

	ctx, stop := setupSignalHandler(cmdContext(cmd), stderr)
	defer stop()

	result, err := hashledger.Run(ctx, runOpts, notices)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	if format == "json" || all.Verbose.Level > 0 {
		if err := result.WriteSummary(stdout, format); err != nil {
			return &exitError{code: 2, err: err}
		}
	}

	if n := len(result.Failed); n > 0 {
		return &exitError{code: 2, err: fmt.Errorf("%d files could not be hashed", n)}
	}
	if result.Mismatch {
		return &exitError{code: 1}
	}
	return nil
}

// buildRunOptions converts validated configuration into run options
func buildRunOptions(all *hashledger.AllConfig, folders []string, ledgerPath string) (hashledger.RunOptions, error) {
	bufferSize, err := hashledger.ParseHumanSize(all.Hash.Buffer)
	if err != nil {
		return hashledger.RunOptions{}, fmt.Errorf("invalid hash buffer: %w", err)
	}
	checksummer, err := hashledger.NewFileChecksummer(all.Hash.Default, bufferSize)
	if err != nil {
		return hashledger.RunOptions{}, err
	}

	ignore, err := hashledger.NewIgnoreManager(all.Scan.Ignore, all.Scan.IgnoreFile)
	if err != nil {
		return hashledger.RunOptions{}, err
	}

	policy, _ := hashledger.ParseExistingPolicy(all.Ledger.Existing)
	errorPolicy, _ := hashledger.ParseErrorPolicy(all.Scan.OnError)

	return hashledger.RunOptions{
		LedgerPath:      ledgerPath,
		Folders:         folders,
		Policy:          policy,
		Workers:         all.Performance.Workers,
		RemoveOld:       all.Ledger.RemoveOld,
		IncludeDotFiles: all.Scan.IncludeDotFiles,
		Symlinks:        all.Scan.Symlinks,
		Ignore:          ignore,
		FlushThreshold:  all.Ledger.FlushThreshold,
		ErrorPolicy:     errorPolicy,
		Checksummer:     checksummer,
	}, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
