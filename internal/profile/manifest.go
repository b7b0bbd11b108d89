package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
)

// ManagedFile is one file a profile switch may relocate.
type ManagedFile struct {
	OriginalPath string `json:"original_path"`
	BackupPath   string `json:"backup_path"`
}

// Manifest is the oracle for which files belong to a profile and
// where their backup copies live, per spec.md §4.11.
type Manifest struct {
	ProfileID string        `json:"profile_id"`
	Files     []ManagedFile `json:"files"`
}

func manifestPath(installDir, profileID string) string {
	return filepath.Join(installDir, ".ST_PROFILES", profileID+".manifest.json")
}

// backupSuffix returns the `.ST_PROFILE.<sanitized>` suffix appended to
// a file's absolute original path to form its backup path.
func backupSuffix(profileID string) string {
	return ".ST_PROFILE." + sanitizeProfileName(profileID)
}

func sanitizeProfileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
		`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return replacer.Replace(name)
}

// loadOrBuildManifest loads the persisted manifest for profileID; if
// missing or empty, it rebuilds one by scanning installDir for files
// bearing the profile's backup suffix, then cross-references
// checksumStore to notice backups with no corresponding manifest
// entry (self-heal), per spec.md §4.11's crash-recovery rule.
func loadOrBuildManifest(installDir, profileID string, checksumStore *checksumstore.Store) (*Manifest, error) {
	m, err := loadManifest(installDir, profileID)
	if err == nil && len(m.Files) > 0 {
		return m, nil
	}

	rebuilt, err := rebuildManifestFromDisk(installDir, profileID)
	if err != nil {
		return nil, err
	}

	if checksumStore != nil {
		selfHealFromChecksumStore(rebuilt, installDir, profileID, checksumStore)
	}

	// No backup-suffixed files were ever found: either the profile has
	// no files yet, or it is the currently-live profile that has never
	// been deactivated before. In the latter case its tracked files
	// still carry their plain (unsuffixed) original paths on disk —
	// pull the candidate set from the checksum store instead of
	// scanning the whole install tree for an unbounded match.
	if len(rebuilt.Files) == 0 && checksumStore != nil {
		addLiveFilesFromChecksumStore(rebuilt, installDir, profileID, checksumStore)
	}

	return rebuilt, nil
}

// addLiveFilesFromChecksumStore populates rebuilt with ManagedFile
// entries for every portable path the checksum store knows about for
// profileID whose plain (unsuffixed) original still exists on disk.
func addLiveFilesFromChecksumStore(m *Manifest, installDir, profileID string, checksumStore *checksumstore.Store) {
	manifest, err := checksumStore.Load(installDir, profileID)
	if err != nil {
		return
	}
	suffix := backupSuffix(profileID)
	for portable := range manifest.Files {
		rel := strings.TrimPrefix(portable, "%GAMEPATH%/")
		original := filepath.Join(installDir, filepath.FromSlash(rel))
		if _, err := os.Stat(original); err != nil {
			continue
		}
		m.Files = append(m.Files, ManagedFile{OriginalPath: original, BackupPath: original + suffix})
	}
}

func loadManifest(installDir, profileID string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(installDir, profileID))
	if err != nil {
		return &Manifest{ProfileID: profileID}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return &Manifest{ProfileID: profileID}, err
	}
	return &m, nil
}

// saveManifest persists the manifest immediately — callers call this
// right after mutating filesystem state so a crash mid-switch can
// recover from the manifest rather than re-deriving truth.
func saveManifest(installDir string, m *Manifest) error {
	path := manifestPath(installDir, m.ProfileID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write profile manifest temp file: %w", err)
	}
	return os.Rename(tmp, path)
}

func rebuildManifestFromDisk(installDir, profileID string) (*Manifest, error) {
	suffix := backupSuffix(profileID)
	m := &Manifest{ProfileID: profileID}

	err := filepath.Walk(installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}
		original := strings.TrimSuffix(path, suffix)
		m.Files = append(m.Files, ManagedFile{OriginalPath: original, BackupPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan install directory for profile backups: %w", err)
	}
	return m, nil
}

// selfHealFromChecksumStore notices portable paths recorded by the
// checksum store whose backup form exists on disk but aren't yet
// represented in the rebuilt manifest.
func selfHealFromChecksumStore(m *Manifest, installDir, profileID string, checksumStore *checksumstore.Store) {
	manifest, err := checksumStore.Load(installDir, profileID)
	if err != nil {
		return
	}

	known := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		known[f.BackupPath] = true
	}

	suffix := backupSuffix(profileID)
	for portable := range manifest.Files {
		rel := strings.TrimPrefix(portable, "%GAMEPATH%/")
		original := filepath.Join(installDir, filepath.FromSlash(rel))
		backup := original + suffix
		if known[backup] {
			continue
		}
		if _, err := os.Stat(backup); err == nil {
			m.Files = append(m.Files, ManagedFile{OriginalPath: original, BackupPath: backup})
			known[backup] = true
		}
	}
}
