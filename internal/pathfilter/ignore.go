package pathfilter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed default_ignores.json
var defaultIgnoresJSON []byte

// ignoreDocument is the on-disk JSON shape for a persisted IgnoreRegistry.
type ignoreDocument struct {
	DirPrefixes []string `json:"dir_prefixes"`
	Extensions  []string `json:"extensions"`
	Filenames   []string `json:"filenames"`
	Keywords    []string `json:"keywords"`
}

// IgnoreRegistry holds the operator-maintained ignore lists: directory
// prefixes, file extensions, exact filenames, and substring keywords.
// Defaults are bundled and merged with whatever is persisted on disk.
type IgnoreRegistry struct {
	mu          sync.RWMutex
	dirPrefixes map[string]bool
	extensions  map[string]bool
	filenames   map[string]bool
	keywords    []string
}

// NewIgnoreRegistry builds a registry seeded with the bundled defaults.
func NewIgnoreRegistry() *IgnoreRegistry {
	r := &IgnoreRegistry{
		dirPrefixes: make(map[string]bool),
		extensions:  make(map[string]bool),
		filenames:   make(map[string]bool),
	}
	var defaults ignoreDocument
	if err := json.Unmarshal(defaultIgnoresJSON, &defaults); err == nil {
		r.merge(defaults)
	}
	return r
}

// Load reads a persisted registry from path, merging it on top of the
// bundled defaults. A missing file is not an error.
func Load(path string) (*IgnoreRegistry, error) {
	r := NewIgnoreRegistry()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read ignore registry %s: %w", path, err)
	}
	var doc ignoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ignore registry %s: %w", path, err)
	}
	r.merge(doc)
	return r, nil
}

// Save persists the registry as JSON, atomically.
func (r *IgnoreRegistry) Save(path string) error {
	r.mu.RLock()
	doc := ignoreDocument{
		DirPrefixes: keys(r.dirPrefixes),
		Extensions:  keys(r.extensions),
		Filenames:   keys(r.filenames),
		Keywords:    append([]string(nil), r.keywords...),
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ignore registry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ignore registry temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename ignore registry into place: %w", err)
	}
	return nil
}

func (r *IgnoreRegistry) merge(doc ignoreDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range doc.DirPrefixes {
		r.dirPrefixes[normalize(p)] = true
	}
	for _, e := range doc.Extensions {
		r.extensions[strings.ToLower(e)] = true
	}
	for _, f := range doc.Filenames {
		r.filenames[strings.ToLower(f)] = true
	}
	r.keywords = append(r.keywords, doc.Keywords...)
}

// ShouldIgnore returns true if path matches any of the four ignore kinds.
func (r *IgnoreRegistry) ShouldIgnore(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norm := normalize(path)
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if r.filenames[base] {
		return true
	}
	if ext != "" && r.extensions[ext] {
		return true
	}
	for prefix := range r.dirPrefixes {
		if hasPrefixFold(norm, prefix) {
			return true
		}
	}
	lowerPath := strings.ToLower(filepath.ToSlash(path))
	for _, kw := range r.keywords {
		if kw != "" && strings.Contains(lowerPath, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// AddDirPrefix registers a directory prefix to ignore.
func (r *IgnoreRegistry) AddDirPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirPrefixes[normalize(prefix)] = true
}

// RemoveDirPrefix un-registers a directory prefix.
func (r *IgnoreRegistry) RemoveDirPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirPrefixes, normalize(prefix))
}

// AddExtension registers a file extension (e.g. ".log") to ignore.
func (r *IgnoreRegistry) AddExtension(ext string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions[strings.ToLower(ext)] = true
}

// RemoveExtension un-registers a file extension.
func (r *IgnoreRegistry) RemoveExtension(ext string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.extensions, strings.ToLower(ext))
}

// AddFilename registers an exact filename to ignore.
func (r *IgnoreRegistry) AddFilename(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filenames[strings.ToLower(name)] = true
}

// RemoveFilename un-registers an exact filename.
func (r *IgnoreRegistry) RemoveFilename(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filenames, strings.ToLower(name))
}

// AddKeyword registers a substring keyword to ignore.
func (r *IgnoreRegistry) AddKeyword(keyword string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keywords = append(r.keywords, keyword)
}

// RemoveKeyword un-registers a substring keyword (first match removed).
func (r *IgnoreRegistry) RemoveKeyword(keyword string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, kw := range r.keywords {
		if kw == keyword {
			r.keywords = append(r.keywords[:i], r.keywords[i+1:]...)
			return
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
