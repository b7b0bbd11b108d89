// Package pathfilter implements the stateless path classifiers of
// spec.md §4.1 (C1): PathFilter rejects paths that can never be save
// data, and IgnoreRegistry rejects paths an operator has explicitly
// excluded. The pipeline is PathFilter, then IgnoreRegistry, then the
// File Collector's size/count gates (§4.4).
package pathfilter

import (
	"path/filepath"
	"runtime"
	"strings"
)

// PathFilter rejects paths that structurally cannot be save data:
// system binary roots, recycle bins, caches, and the game's own
// install-directory subtrees that aren't a known user-data leaf.
type PathFilter struct {
	installDir   string
	denyPrefixes []string
	userDataLeaf []string
	executables  map[string]bool
}

// userDataLeafNames are subdirectory names under an install directory
// that commonly hold actual save data rather than program binaries.
var userDataLeafNames = []string{
	"save", "saves", "savegame", "savegames", "userdata", "profiles",
	"config", "settings",
}

// New constructs a PathFilter scoped to a single install directory.
func New(installDir string, executables []string) *PathFilter {
	pf := &PathFilter{
		installDir:   filepath.Clean(installDir),
		denyPrefixes: platformDenyPrefixes(),
		userDataLeaf: userDataLeafNames,
		executables:  make(map[string]bool, len(executables)),
	}
	for _, exe := range executables {
		pf.executables[normalize(exe)] = true
	}
	return pf
}

// ShouldTrack returns true if path is a plausible save-file candidate.
func (pf *PathFilter) ShouldTrack(path string) bool {
	norm := normalize(path)

	if pf.executables[norm] {
		return false
	}

	for _, deny := range pf.denyPrefixes {
		if hasPrefixFold(norm, normalize(deny)) {
			return false
		}
	}

	if hasPrefixFold(norm, normalize(pf.installDir)) {
		rel := strings.TrimPrefix(norm, normalize(pf.installDir))
		rel = strings.TrimLeft(rel, `/\`)
		if pf.isExecutableLike(rel) && !pf.underUserDataLeaf(rel) {
			return false
		}
	}

	return true
}

// isExecutableLike rejects typical engine binary extensions that are
// never save data, regardless of which subtree they live under.
func (pf *PathFilter) isExecutableLike(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	switch ext {
	case ".exe", ".dll", ".so", ".dylib", ".pdb":
		return true
	}
	return false
}

// underUserDataLeaf returns true if rel (relative to the install dir)
// passes through one of the known user-data leaf directory names.
func (pf *PathFilter) underUserDataLeaf(rel string) bool {
	relSlash := filepath.ToSlash(strings.ToLower(rel))
	for _, leaf := range pf.userDataLeaf {
		if strings.Contains(relSlash, "/"+leaf+"/") || strings.HasPrefix(relSlash, leaf+"/") {
			return true
		}
	}
	return false
}

func normalize(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(filepath.Clean(path))
	}
	return filepath.Clean(path)
}

func hasPrefixFold(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func platformDenyPrefixes() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\Windows`,
			`C:\Program Files\Common Files`,
			`C:\$Recycle.Bin`,
			`C:\ProgramData\Package Cache`,
		}
	}
	return []string{
		"/proc", "/sys", "/dev",
		"/usr/bin", "/usr/sbin", "/bin", "/sbin",
		"/var/cache",
	}
}
