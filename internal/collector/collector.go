// Package collector implements the File Collector (C4): it consumes
// the tracking engine's event stream and maintains the session's
// trackedFiles/uploadCandidates sets under the caps and companion-file
// rules described in spec.md §4.4.
package collector

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/pathfilter"
)

// sentinelPath is inserted once into trackedFiles when MAX_FILES is
// breached, so the cap event isn't re-logged on every subsequent
// write. Callers MUST filter it before any downstream use.
const sentinelPath = "TRACKING_LIMIT_EXCEEDED_PLACEHOLDER"

// Caps bounds a session's capture per spec.md §3.
type Caps struct {
	MaxFiles     int
	MaxTotalSize int64
}

// Collector holds one session's trackedFiles and uploadCandidates
// sets, plus the cumulative byte counter, all behind a single lock
// (the "session list-lock").
type Collector struct {
	logger *zap.Logger
	filter *pathfilter.PathFilter
	ignore *pathfilter.IgnoreRegistry
	caps   Caps

	mu               sync.Mutex
	trackedFiles     map[string]string // normalized key -> original path
	uploadCandidates map[string]string
	cumulativeBytes  int64
	capBreached      bool
}

// New constructs a Collector for one session.
func New(filter *pathfilter.PathFilter, ignore *pathfilter.IgnoreRegistry, caps Caps, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if caps.MaxFiles <= 0 {
		caps.MaxFiles = 500
	}
	if caps.MaxTotalSize <= 0 {
		caps.MaxTotalSize = 100 * 1024 * 1024
	}
	return &Collector{
		logger:           logger.With(zap.String("component", "collector")),
		filter:           filter,
		ignore:           ignore,
		caps:             caps,
		trackedFiles:     make(map[string]string),
		uploadCandidates: make(map[string]string),
	}
}

// Observe processes a single observed path per the §4.4 pipeline.
func (c *Collector) Observe(path string) {
	path = filepath.FromSlash(path)

	if c.filter != nil && !c.filter.ShouldTrack(path) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, already := c.trackedFiles[normalizeKey(path)]; already {
		return
	}
	if c.capBreached {
		return
	}

	if len(c.trackedFiles) >= c.caps.MaxFiles {
		if !c.capBreached {
			c.capBreached = true
			c.trackedFiles[normalizeKey(sentinelPath)] = sentinelPath
			c.logger.Warn("MAX_FILES reached, further writes dropped", zap.Int("max_files", c.caps.MaxFiles))
		}
		return
	}

	size, err := statSize(path)
	if err != nil {
		return
	}
	if c.cumulativeBytes+size > c.caps.MaxTotalSize {
		c.logger.Warn("MAX_TOTAL_SIZE would be exceeded, rejecting file",
			zap.String("path", path), zap.Int64("size", size))
		return
	}

	companion, hasCompanion := companionOf(path)

	mainIgnored := c.ignore != nil && c.ignore.ShouldIgnore(path)
	companionIgnored := hasCompanion && c.ignore != nil && c.ignore.ShouldIgnore(companion)

	if !mainIgnored {
		c.uploadCandidates[normalizeKey(path)] = path
		c.trackedFiles[normalizeKey(path)] = path
		c.cumulativeBytes += size
	}

	if hasCompanion && !companionIgnored {
		if _, exists := c.uploadCandidates[normalizeKey(companion)]; !exists {
			if companionSize, err := statSize(companion); err == nil {
				if c.cumulativeBytes+companionSize > c.caps.MaxTotalSize {
					c.logger.Warn("MAX_TOTAL_SIZE would be exceeded, rejecting companion",
						zap.String("path", companion), zap.Int64("size", companionSize))
				} else {
					c.uploadCandidates[normalizeKey(companion)] = companion
					c.cumulativeBytes += companionSize
				}
			} else {
				// Companion may not exist yet (e.g. pre-rename target);
				// still register it as a candidate per §4.4 rule 5.
				c.uploadCandidates[normalizeKey(companion)] = companion
			}
		}
	}
}

// TrackedFiles returns a snapshot of the tracked-files set, excluding
// the internal sentinel marker.
func (c *Collector) TrackedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return keysExcludingSentinel(c.trackedFiles)
}

// UploadCandidates returns a snapshot of the upload-candidate set,
// which is a superset of trackedFiles once companion resolution has
// run (spec.md §3 invariant).
func (c *Collector) UploadCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return keysExcludingSentinel(c.uploadCandidates)
}

// CapBreached reports whether MAX_FILES was hit during this session.
func (c *Collector) CapBreached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capBreached
}

// FinalUploadList derives the session-end upload list: uploadCandidates
// filtered to paths that still exist on disk, per §4.4's closing rule
// ("post-rename truth").
func (c *Collector) FinalUploadList() []string {
	candidates := c.UploadCandidates()
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func keysExcludingSentinel(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if k == normalizeKey(sentinelPath) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// companionOf implements the §4.4 rule 5 companion derivation: if the
// basename has two or more dotted segments, the companion is the same
// path with the final extension stripped.
func companionOf(path string) (string, bool) {
	dir, base := filepath.Split(path)
	segments := strings.Split(base, ".")
	if len(segments) < 3 {
		// "name.ext" has exactly 2 segments and no companion;
		// ">=2 dotted segments" in the basename means >= 2 dots.
		return "", false
	}
	trimmed := strings.Join(segments[:len(segments)-1], ".")
	return filepath.Join(dir, trimmed), true
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// normalizeKey is the case-insensitive comparison key paths are
// stored under, per spec.md §3 ("compared case-insensitively").
func normalizeKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
