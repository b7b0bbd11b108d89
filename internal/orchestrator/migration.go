package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/staarchive"
	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

// legacyManifestNames are the filenames a legacy profile folder might
// use for its manifest, checked in order.
var legacyManifestNames = []string{"manifest.json", ".manifest.json", "profile.json"}

// legacyManifest is the shape of a pre-.sta profile manifest.
type legacyManifest struct {
	ProfileID string                    `json:"profile_id"`
	PlayTime  float64                   `json:"play_time_seconds"`
	Files     map[string]legacyFileMeta `json:"files"`
}

type legacyFileMeta struct {
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// migrateProfiles downloads every legacy profile subfolder under
// legacyRemoteDir, packs its non-manifest files into a new .sta
// archive carrying a migrated GameUploadData, and uploads it to
// gameID's current remote location. Returns an error if any single
// profile fails, so the caller knows not to purge the legacy root.
func migrateProfiles(ctx context.Context, xfer *transfer.Driver, workDir, gameID, legacyRemoteDir, installDir string) error {
	folders, err := xfer.LsJSON(ctx, legacyRemoteDir, false)
	if err != nil {
		return fmt.Errorf("list legacy profiles under %s: %w", legacyRemoteDir, err)
	}

	for _, folder := range folders {
		if !folder.IsDir {
			continue
		}
		if err := migrateOneProfile(ctx, xfer, workDir, gameID, legacyRemoteDir, folder.Path, installDir); err != nil {
			return fmt.Errorf("migrate profile %s: %w", folder.Path, err)
		}
	}
	return nil
}

func migrateOneProfile(ctx context.Context, xfer *transfer.Driver, workDir, gameID, legacyRemoteDir, profileFolder, installDir string) error {
	tmpDir, err := os.MkdirTemp(workDir, "legacy-"+profileFolder+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	remoteFolder := legacyRemoteDir + "/" + profileFolder
	entries, err := xfer.LsJSON(ctx, remoteFolder, true)
	if err != nil {
		return fmt.Errorf("list legacy folder contents: %w", err)
	}

	for _, e := range entries {
		if e.IsDir {
			continue
		}
		local := filepath.Join(tmpDir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return fmt.Errorf("create staging subdir: %w", err)
		}
		if err := xfer.Copy(ctx, remoteFolder+"/"+e.Path, local, nil); err != nil {
			return fmt.Errorf("download %s: %w", e.Path, err)
		}
	}

	manifest, manifestRel, err := loadLegacyManifest(tmpDir)
	if err != nil {
		return fmt.Errorf("locate legacy manifest: %w", err)
	}

	var files []string
	metadata := staarchive.GameUploadData{
		PlayTime:    staarchive.Duration(time.Duration(manifest.PlayTime * float64(time.Second))),
		LastUpdated: time.Now().UTC(),
		Files:       make(map[string]staarchive.FileChecksumRecord),
	}
	err = filepath.Walk(tmpDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(tmpDir, path)
		if err != nil || rel == manifestRel {
			return nil
		}
		files = append(files, path)
		portable := filepath.ToSlash(rel)
		meta := manifest.Files[portable]
		metadata.Files[portable] = staarchive.FileChecksumRecord{
			Path: portable, Checksum: meta.Checksum, FileSize: info.Size(),
			LastUpload: time.Now().UTC(), LastWriteTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk staged profile: %w", err)
	}

	archivePath := filepath.Join(workDir, fmt.Sprintf("%s-migrate-%s.sta", gameID, profileFolder))
	if _, err := staarchive.Pack(archivePath, files, tmpDir, metadata, ""); err != nil {
		return fmt.Errorf("pack migrated archive: %w", err)
	}
	defer os.Remove(archivePath)

	destRemote := gameIDRemoteArchivePath(legacyRemoteDir, staarchive.ArchiveName(profileFolder))
	return xfer.Copy(ctx, archivePath, destRemote, nil)
}

// gameIDRemoteArchivePath derives the game's top-level remote
// directory from its legacy subfolder path and appends the migrated
// archive name.
func gameIDRemoteArchivePath(legacyRemoteDir, archiveName string) string {
	gameRemoteDir := filepath.ToSlash(filepath.Dir(legacyRemoteDir))
	return gameRemoteDir + "/" + archiveName
}

func loadLegacyManifest(dir string) (*legacyManifest, string, error) {
	for _, name := range legacyManifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m legacyManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", name, err)
		}
		return &m, name, nil
	}
	return nil, "", fmt.Errorf("no legacy manifest found among %v", legacyManifestNames)
}
