// Package checksumstore implements the Checksum Store (C5): the
// per-(game, profile) JSON manifest of tracked files, their content
// hashes, and cumulative play-time, used as the source of truth for
// Smart Sync's local-side comparisons (spec.md §4.5).
package checksumstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/pathcontract"
	"github.com/savetrackerd/savetrackerd/internal/staarchive"
)

// FileEntry is one tracked file's record within a Manifest. It is the
// same schema staarchive embeds in a .sta archive's header, per
// spec.md §6: the local copy and the archived copy share one format.
type FileEntry = staarchive.FileChecksumRecord

// Manifest is the per-(game, profile) document. Files are keyed by
// their portable path form (§4.6), so they survive across machines
// and Wine prefixes with different absolute roots. profileID is never
// stored in the document itself; callers already address the right
// document by passing profileID into Load/Save/UpdateBatch.
type Manifest = staarchive.GameUploadData

func emptyManifest() *Manifest {
	return &Manifest{Files: make(map[string]FileEntry)}
}

// Store mediates all reads/writes of manifest documents; each call
// names the install directory it works on. A per-path mutex serializes concurrent mutations
// to the same document, per spec.md's "callers batch" requirement.
type Store struct {
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger.With(zap.String("component", "checksumstore")),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(docPath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[docPath]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[docPath] = l
	return l
}

// docPath returns the profile-qualified manifest path for gameDir.
// The default profile ("" or "default") uses the conventional
// unqualified filename; others are suffixed.
func docPath(gameDir, profileID string) string {
	if profileID == "" || profileID == "default" {
		return filepath.Join(gameDir, ".savetracker_manifest.json")
	}
	return filepath.Join(gameDir, fmt.Sprintf(".savetracker_manifest.%s.json", sanitize(profileID)))
}

func legacyDocPath(gameDir string) string {
	return filepath.Join(gameDir, ".savetracker_manifest.json")
}

func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
		`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return replacer.Replace(name)
}

// Load returns the manifest for (gameDir, profileID), or an empty one
// if absent or unparseable. A non-default profile with no document of
// its own auto-migrates from the legacy unprofiled filename.
func (s *Store) Load(gameDir, profileID string) (*Manifest, error) {
	path := docPath(gameDir, profileID)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("manifest unreadable, starting empty", zap.String("path", path), zap.Error(err))
			return emptyManifest(), nil
		}
		if profileID != "" && profileID != "default" {
			if legacy, lerr := os.ReadFile(legacyDocPath(gameDir)); lerr == nil {
				var m Manifest
				if jerr := json.Unmarshal(legacy, &m); jerr == nil {
					s.logger.Info("migrated legacy manifest to profile-qualified document",
						zap.String("profile_id", profileID))
					if m.Files == nil {
						m.Files = make(map[string]FileEntry)
					}
					return &m, nil
				}
			}
		}
		return emptyManifest(), nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("manifest corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return emptyManifest(), nil
	}
	if m.Files == nil {
		m.Files = make(map[string]FileEntry)
	}
	return &m, nil
}

// Save atomically persists manifest: write to a temp file, fsync,
// rename over the destination.
func (s *Store) Save(manifest *Manifest, gameDir, profileID string) error {
	path := docPath(gameDir, profileID)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return s.saveLocked(manifest, path)
}

func (s *Store) saveLocked(manifest *Manifest, path string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write manifest temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync manifest temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}

// FileHash computes the streaming SHA-256 of path, hex-encoded.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 4*1024*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Update is one file's refreshed hash/size, keyed by its absolute path;
// UpdateBatch contracts it to a portable key before merging.
type Update struct {
	AbsPath      string
	Hash         string
	Size         int64
	LastModified time.Time
}

// UpdateBatch merges updates into the (gameDir, profileID) manifest
// under the document's mutex, in a single load-mutate-save cycle, so
// play-time and hash updates never interleave across separate writes.
func (s *Store) UpdateBatch(updates []Update, gameDir, profileID, prefix string, playtimeDelta time.Duration) error {
	path := docPath(gameDir, profileID)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	manifest, err := s.loadLocked(path, gameDir, profileID)
	if err != nil {
		return err
	}

	for _, u := range updates {
		key := pathcontract.Contract(u.AbsPath, gameDir, prefix)
		manifest.Files[key] = FileEntry{
			Path:          key,
			Checksum:      u.Hash,
			FileSize:      u.Size,
			LastWriteTime: u.LastModified,
			LastUpload:    time.Now().UTC(),
		}
	}
	manifest.PlayTime += staarchive.Duration(playtimeDelta)
	manifest.LastUpdated = time.Now().UTC()
	if prefix != "" {
		manifest.DetectedPrefix = prefix
	}

	return s.saveLocked(manifest, path)
}

func (s *Store) loadLocked(path, gameDir, profileID string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return emptyManifest(), nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return emptyManifest(), nil
	}
	if m.Files == nil {
		m.Files = make(map[string]FileEntry)
	}
	return &m, nil
}

// CountExistingFiles expands every portable path in manifest against
// gameDir/prefix and counts how many currently exist on disk. Smart
// Sync uses this to detect a wiped-local or dual-boot scenario.
func CountExistingFiles(manifest *Manifest, gameDir, prefix string) int {
	count := 0
	for portable := range manifest.Files {
		abs := pathcontract.Expand(portable, gameDir, prefix)
		if _, err := os.Stat(abs); err == nil {
			count++
		}
	}
	return count
}
