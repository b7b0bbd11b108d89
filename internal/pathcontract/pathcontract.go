// Package pathcontract implements the Path Contractor (C6): a
// bidirectional, pure-function encoder between absolute filesystem
// paths and the portable token form stored in the Checksum Store and
// .sta archive entries (spec.md §4.6).
package pathcontract

import (
	"path/filepath"
	"strings"
)

const (
	gamePathToken = "%GAMEPATH%"
	prefixToken   = "%PREFIX%"
)

// Contract encodes abs into its portable form, relative to gameDir
// first, then prefix, falling back to the absolute path unchanged.
func Contract(abs, gameDir, prefix string) string {
	if gameDir != "" {
		if rel, ok := relativeUnder(abs, gameDir); ok {
			return gamePathToken + "/" + rel
		}
	}
	if prefix != "" {
		if rel, ok := relativeUnder(abs, prefix); ok {
			return prefixToken + "/" + rel
		}
	}
	return filepath.ToSlash(abs)
}

// Expand reverses Contract. An unrecognized token is passed through
// unchanged (the path is treated as already absolute).
func Expand(portable, gameDir, prefix string) string {
	switch {
	case strings.HasPrefix(portable, gamePathToken+"/"):
		rel := strings.TrimPrefix(portable, gamePathToken+"/")
		return filepath.Join(gameDir, filepath.FromSlash(rel))
	case strings.HasPrefix(portable, prefixToken+"/"):
		rel := strings.TrimPrefix(portable, prefixToken+"/")
		return filepath.Join(prefix, filepath.FromSlash(rel))
	default:
		return filepath.FromSlash(portable)
	}
}

// relativeUnder reports whether abs lies under root, returning the
// forward-slashed relative path if so.
func relativeUnder(abs, root string) (string, bool) {
	absClean := filepath.Clean(abs)
	rootClean := filepath.Clean(root)

	rel, err := filepath.Rel(rootClean, absClean)
	if err != nil {
		return "", false
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
