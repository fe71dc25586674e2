package hashledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrNotDirectory is returned when a folder given to Discover is not a directory
var ErrNotDirectory = errors.New("not a directory")

// PathSet is an immutable, deduplicated, sorted set of slash-separated relative paths.
// It is safe to share between goroutines.
type PathSet struct {
	paths []string
	index map[string]struct{}
}

// NewPathSet builds a PathSet from paths in any order, dropping duplicates
func NewPathSet(paths []string) *PathSet {
	ps := &PathSet{index: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if _, ok := ps.index[p]; ok {
			continue
		}
		ps.index[p] = struct{}{}
		ps.paths = append(ps.paths, p)
	}
	sort.Strings(ps.paths)
	return ps
}

// Contains reports whether path is in the set
func (ps *PathSet) Contains(path string) bool {
	if ps == nil {
		return false
	}
	_, ok := ps.index[path]
	return ok
}

// Len returns the number of paths
func (ps *PathSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.paths)
}

// Paths returns a copy of the sorted paths
func (ps *PathSet) Paths() []string {
	if ps == nil {
		return nil
	}
	out := make([]string, len(ps.paths))
	copy(out, ps.paths)
	return out
}

// DiscoverOptions controls path discovery
type DiscoverOptions struct {
	BaseDir         string   // Absolute directory paths are made relative to
	Folders         []string // Folders to walk, relative to BaseDir or absolute
	IncludeDotFiles bool     // Include files and folders whose name starts with a dot
	Symlinks        string   // all, contained or none
	Ignore          *IgnoreManager
	LedgerPath      string // Ledger file; it, its lock and its temp files are never returned
}

// discoverer carries the state of one Discover call
type discoverer struct {
	opts     DiscoverOptions
	ledger   *ledgerArtifacts
	found    []string
	base     string            // BaseDir with symlinks resolved, for containment checks
	realDirs map[string]string // Walked directory path to its resolved path
}

// ledgerArtifacts recognises the ledger file and the files written next to it
type ledgerArtifacts struct {
	dir    string
	base   string
	tempRe *regexp.Regexp
}

func newLedgerArtifacts(ledgerPath string) *ledgerArtifacts {
	if ledgerPath == "" {
		return nil
	}
	abs, err := filepath.Abs(ledgerPath)
	if err != nil {
		abs = filepath.Clean(ledgerPath)
	}
	base := filepath.Base(abs)
	return &ledgerArtifacts{
		dir:    filepath.Dir(abs),
		base:   base,
		tempRe: regexp.MustCompile(`^tmp-\d+-\d+-` + regexp.QuoteMeta(base) + `$`),
	}
}

// matches reports whether absPath is the ledger, its lock file or one of its temp files
func (la *ledgerArtifacts) matches(absPath string) bool {
	if la == nil || filepath.Dir(absPath) != la.dir {
		return false
	}
	name := filepath.Base(absPath)
	return name == la.base || name == la.base+LockSuffix || la.tempRe.MatchString(name)
}

// Discover walks every folder and returns the relative paths of the files found.
// Directories are never returned.
func Discover(opts DiscoverOptions) (*PathSet, error) {
	defer VerboseEnter()()

	if opts.Symlinks == "" {
		opts.Symlinks = SymlinksAll
	}
	if err := ValidateSymlinkMode(opts.Symlinks); err != nil {
		return nil, err
	}

	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %s: %w", opts.BaseDir, err)
	}
	opts.BaseDir = filepath.Clean(base)

	roots := make([]string, 0, len(opts.Folders))
	for _, folder := range opts.Folders {
		root := folder
		if !filepath.IsAbs(root) {
			root = filepath.Join(opts.BaseDir, folder)
		}
		root = filepath.Clean(root)

		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat folder %s: %w", folder, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("path %s: %w", root, ErrNotDirectory)
		}
		if root != opts.BaseDir && !isPathUnder(root, opts.BaseDir) {
			return nil, fmt.Errorf("folder %s is outside base directory %s", folder, opts.BaseDir)
		}
		roots = append(roots, root)
	}

	d := &discoverer{
		opts:     opts,
		ledger:   newLedgerArtifacts(opts.LedgerPath),
		base:     opts.BaseDir,
		realDirs: make(map[string]string),
	}
	if resolved, err := filepath.EvalSymlinks(opts.BaseDir); err == nil {
		d.base = resolved
	}

	for _, root := range deduplicatePaths(roots) {
		if err := d.walk(root); err != nil {
			return nil, err
		}
	}

	ps := NewPathSet(d.found)
	VerboseLog(2, "Discovered %d files under %d folders", ps.Len(), len(roots))
	return ps, nil
}

// walk visits rootPath in lexicographic order, appending regular files to d.found
func (d *discoverer) walk(rootPath string) error {
	debugLog("scan", "walk: starting at %s", rootPath)

	pathQueue := []string{rootPath}
	for len(pathQueue) > 0 {
		currentPath := pathQueue[0]
		pathQueue = pathQueue[1:]

		info, err := os.Lstat(currentPath)
		if err != nil {
			debugLog("scan", "walk: skipping %s: %v", currentPath, err)
			continue
		}

		relPath, err := filepath.Rel(d.opts.BaseDir, currentPath)
		if err != nil {
			continue
		}
		relPath = filepath.ToSlash(relPath)

		if currentPath != rootPath {
			if !d.opts.IncludeDotFiles && strings.HasPrefix(info.Name(), ".") {
				continue
			}
			if d.opts.Ignore.ShouldIgnore(relPath) {
				debugLog("scan", "walk: ignoring %s", relPath)
				continue
			}
		}

		if info.Mode()&os.ModeSymlink != 0 {
			targetInfo, ok := d.followSymlink(currentPath)
			if !ok {
				continue
			}
			info = targetInfo
		}

		switch {
		case info.IsDir():
			children, err := d.readDir(currentPath, rootPath)
			if err != nil {
				return err
			}
			pathQueue = insertSorted(pathQueue, children)
		case info.Mode().IsRegular():
			if d.ledger.matches(currentPath) {
				continue
			}
			debugLog("scan", "walk: found file %s", relPath)
			d.found = append(d.found, relPath)
		}
	}

	return nil
}

// followSymlink applies the symlink mode and returns the target's info if the link is followed
func (d *discoverer) followSymlink(linkPath string) (os.FileInfo, bool) {
	switch d.opts.Symlinks {
	case SymlinksNone:
		return nil, false
	case SymlinksContained:
		target, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			return nil, false
		}
		if !isPathContained(target, d.base) {
			debugLog("scan", "walk: symlink %s leaves %s", linkPath, d.base)
			return nil, false
		}
	}

	targetInfo, err := os.Stat(linkPath)
	if err != nil {
		return nil, false // broken link
	}
	return targetInfo, true
}

// readDir lists a directory, returning child paths in sorted order. A directory that
// resolves to the same place as one of its ancestors is a symlink loop and yields nothing.
func (d *discoverer) readDir(dirPath, rootPath string) ([]string, error) {
	realPath, err := filepath.EvalSymlinks(dirPath)
	if err != nil {
		realPath = dirPath
	}
	d.realDirs[dirPath] = realPath

	for ancestor := dirPath; ancestor != rootPath && isPathUnder(ancestor, rootPath); {
		ancestor = filepath.Dir(ancestor)
		if d.realDirs[ancestor] == realPath {
			debugLog("scan", "walk: %s loops back to %s", dirPath, ancestor)
			return nil, nil
		}
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}

	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		children = append(children, filepath.Join(dirPath, entry.Name()))
	}
	sort.Strings(children)
	return children, nil
}

// insertSorted merges sorted newPaths into the sorted queue
func insertSorted(existing []string, newPaths []string) []string {
	if len(newPaths) == 0 {
		return existing
	}
	if len(existing) == 0 {
		return newPaths
	}

	result := make([]string, 0, len(existing)+len(newPaths))
	i, j := 0, 0
	for i < len(existing) && j < len(newPaths) {
		if existing[i] <= newPaths[j] {
			result = append(result, existing[i])
			i++
		} else {
			result = append(result, newPaths[j])
			j++
		}
	}
	result = append(result, existing[i:]...)
	return append(result, newPaths[j:]...)
}

// deduplicatePaths sorts paths and removes any that lie under another path in the list
func deduplicatePaths(paths []string) []string {
	if len(paths) <= 1 {
		return paths
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	var deduplicated []string
	for _, path := range sorted {
		redundant := false
		for _, prev := range deduplicated {
			if path == prev || isPathUnder(path, prev) {
				redundant = true
				break
			}
		}
		if !redundant {
			deduplicated = append(deduplicated, path)
		}
	}

	return deduplicated
}

// isPathUnder checks if childPath is strictly under parentPath
func isPathUnder(childPath, parentPath string) bool {
	childPath = filepath.Clean(childPath)
	parentPath = filepath.Clean(parentPath)

	if childPath == parentPath {
		return false
	}
	if parentPath == string(filepath.Separator) {
		return strings.HasPrefix(childPath, parentPath)
	}
	return strings.HasPrefix(childPath, parentPath+string(filepath.Separator))
}

// isPathContained checks if targetPath is containerPath or lies under it
func isPathContained(targetPath, containerPath string) bool {
	targetPath = filepath.Clean(targetPath)
	containerPath = filepath.Clean(containerPath)
	return targetPath == containerPath || isPathUnder(targetPath, containerPath)
}
