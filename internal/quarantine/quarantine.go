// Package quarantine implements Quarantine (C12): moving a blocking
// or suspect file aside into a hidden directory rather than deleting
// it outright, per spec.md §4.12.
package quarantine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirName is the hidden subdirectory name under an install directory.
const DirName = ".ST_QUARANTINE"

const timeLayout = "20060102_150405"

// Quarantine manages one install directory's quarantine subtree.
type Quarantine struct {
	logger *zap.Logger
	dir    string
}

// New constructs a Quarantine rooted under installDir/.ST_QUARANTINE.
func New(installDir string, logger *zap.Logger) *Quarantine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quarantine{
		logger: logger.With(zap.String("component", "quarantine")),
		dir:    filepath.Join(installDir, DirName),
	}
}

// Entry describes one quarantined file's metadata sidecar.
type Entry struct {
	QuarantinedPath string
	OriginalPath    string
	Timestamp       time.Time
	Reason          string
}

// Move relocates originalPath into the quarantine directory, naming
// it "<yyyymmdd_hhmmss>_<8-char id>_<basename>", with a sibling .meta.txt sidecar
// recording the original path, UTC timestamp, and reason.
func (q *Quarantine) Move(originalPath, reason string) (*Entry, error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create quarantine directory: %w", err)
	}

	now := time.Now().UTC()
	base := filepath.Base(originalPath)
	quarantinedName := now.Format(timeLayout) + "_" + shortID() + "_" + base
	quarantinedPath := filepath.Join(q.dir, quarantinedName)

	if err := os.Rename(originalPath, quarantinedPath); err != nil {
		return nil, fmt.Errorf("move %s to quarantine: %w", originalPath, err)
	}

	entry := &Entry{
		QuarantinedPath: quarantinedPath,
		OriginalPath:    originalPath,
		Timestamp:       now,
		Reason:          reason,
	}
	if err := q.writeSidecar(entry); err != nil {
		q.logger.Warn("failed to write quarantine sidecar", zap.String("path", quarantinedPath), zap.Error(err))
	}

	q.logger.Info("quarantined file", zap.String("original", originalPath), zap.String("reason", reason))
	return entry, nil
}

// shortID returns a collision-safe suffix so two files quarantined in
// the same second with the same basename never land on the same path.
func shortID() string {
	return uuid.NewString()[:8]
}

func (q *Quarantine) sidecarPath(quarantinedPath string) string {
	return quarantinedPath + ".meta.txt"
}

func (q *Quarantine) writeSidecar(entry *Entry) error {
	content := fmt.Sprintf("original_path: %s\ntimestamp_utc: %s\nreason: %s\n",
		entry.OriginalPath, entry.Timestamp.Format(time.RFC3339), entry.Reason)
	return os.WriteFile(q.sidecarPath(entry.QuarantinedPath), []byte(content), 0o644)
}

// Restore reverses Move: renames quarantinedPath back to the original
// path recorded in its sidecar. If that destination is already
// occupied, the occupant is first moved into quarantine with Move; it
// is not restored in turn, so a restore displaces at most one file.
func (q *Quarantine) Restore(quarantinedPath string) error {
	return q.restore(quarantinedPath, 0)
}

const maxRestoreChain = 8

func (q *Quarantine) restore(quarantinedPath string, depth int) error {
	if depth > maxRestoreChain {
		return fmt.Errorf("restore chain exceeded %d quarantine displacements", maxRestoreChain)
	}

	entry, err := q.readSidecar(quarantinedPath)
	if err != nil {
		return fmt.Errorf("read quarantine sidecar for %s: %w", quarantinedPath, err)
	}

	if _, err := os.Stat(entry.OriginalPath); err == nil {
		displaced, err := q.Move(entry.OriginalPath, fmt.Sprintf("displaced by restore of %s", filepath.Base(quarantinedPath)))
		if err != nil {
			return fmt.Errorf("displace occupant of %s: %w", entry.OriginalPath, err)
		}
		q.logger.Debug("displaced occupant during restore", zap.String("occupant", displaced.QuarantinedPath))
	}

	if err := os.MkdirAll(filepath.Dir(entry.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("recreate original directory: %w", err)
	}
	if err := os.Rename(quarantinedPath, entry.OriginalPath); err != nil {
		return fmt.Errorf("restore %s: %w", quarantinedPath, err)
	}
	_ = os.Remove(q.sidecarPath(quarantinedPath))

	return nil
}

func (q *Quarantine) readSidecar(quarantinedPath string) (*Entry, error) {
	data, err := os.ReadFile(q.sidecarPath(quarantinedPath))
	if err != nil {
		return nil, err
	}

	entry := &Entry{QuarantinedPath: quarantinedPath}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "original_path":
			entry.OriginalPath = value
		case "timestamp_utc":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				entry.Timestamp = t
			}
		case "reason":
			entry.Reason = value
		}
	}
	if entry.OriginalPath == "" {
		return nil, fmt.Errorf("sidecar missing original_path")
	}
	return entry, nil
}

// List enumerates every currently quarantined entry.
func (q *Quarantine) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read quarantine directory: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), ".meta.txt") {
			continue
		}
		path := filepath.Join(q.dir, de.Name())
		entry, err := q.readSidecar(path)
		if err != nil {
			continue
		}
		entry.QuarantinedPath = path
		out = append(out, *entry)
	}
	return out, nil
}
