// Package profile implements the Profile Manager (C11): switching
// which save-data profile is "live" on disk by renaming files to and
// from a backup suffix, with crash recovery driven by a manifest and
// unexpected occupants routed to Quarantine (spec.md §4.11).
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/errs"
	"github.com/savetrackerd/savetrackerd/internal/quarantine"
)

// Manager switches profiles for one game's install directory.
type Manager struct {
	logger        *zap.Logger
	installDir    string
	checksumStore *checksumstore.Store
	quarantine    *quarantine.Quarantine
}

// New constructs a Manager for one game's install directory.
func New(installDir string, checksumStore *checksumstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:        logger.With(zap.String("component", "profile")),
		installDir:    installDir,
		checksumStore: checksumStore,
		quarantine:    quarantine.New(installDir, logger),
	}
}

// Profile is a lightweight registry entry; Manager itself never
// persists the registry — that's the caller's (internal/store) job.
// This package has no list/add/delete operations; it only switches
// between profiles on disk.
type Profile struct {
	ID   string
	Name string
}

// isSystemFile reports whether rel (relative to installDir) is an
// engine binary or internal metadata path that must never be
// relocated by a profile switch.
func isSystemFile(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	switch ext {
	case ".exe", ".dll", ".so", ".dylib", ".unityplayer":
		return true
	}
	lower := strings.ToLower(filepath.ToSlash(rel))
	if strings.Contains(lower, ".savetracker") || strings.Contains(lower, ".st_profiles/") {
		return true
	}
	return false
}

// SwitchProfile transforms the filesystem so the game sees
// targetProfileID's save data on its next launch. gameRunning must be
// supplied by the caller (the Process Monitor / tracking engine
// knows, not this package).
func (m *Manager) SwitchProfile(currentProfileID, targetProfileID string, gameRunning bool) error {
	if gameRunning {
		return errs.ErrGameRunning
	}
	if currentProfileID == targetProfileID {
		return nil
	}

	current, err := loadOrBuildManifest(m.installDir, currentProfileID, m.checksumStore)
	if err != nil {
		return fmt.Errorf("load current profile manifest: %w", err)
	}
	target, err := loadOrBuildManifest(m.installDir, targetProfileID, m.checksumStore)
	if err != nil {
		return fmt.Errorf("load target profile manifest: %w", err)
	}

	if err := m.deactivate(current); err != nil {
		return fmt.Errorf("deactivate profile %s: %w", currentProfileID, err)
	}
	if err := m.activate(target); err != nil {
		return fmt.Errorf("activate profile %s: %w", targetProfileID, err)
	}

	return nil
}

// deactivate renames every live file named in current's ManagedFile
// list to its backup path, skipping system files, and persists the
// manifest immediately after each successful move so a crash mid-walk
// leaves an accurate record of what's already been relocated.
func (m *Manager) deactivate(current *Manifest) error {
	var done []ManagedFile

	for _, f := range current.Files {
		if _, err := os.Stat(f.OriginalPath); err != nil {
			continue
		}
		rel, relErr := filepath.Rel(m.installDir, f.OriginalPath)
		if relErr == nil && isSystemFile(rel) {
			continue
		}

		if err := os.Rename(f.OriginalPath, f.BackupPath); err != nil {
			return fmt.Errorf("backup %s: %w", f.OriginalPath, err)
		}
		done = append(done, f)

		current.Files = done
		if err := saveManifest(m.installDir, current); err != nil {
			m.logger.Warn("failed to persist manifest mid-deactivate", zap.Error(err))
		}
	}

	current.Files = done
	return saveManifest(m.installDir, current)
}

// activate renames every backed-up file of the target profile back to
// its original path, quarantining any unexpected occupant first.
func (m *Manager) activate(target *Manifest) error {
	for _, f := range target.Files {
		if _, err := os.Stat(f.BackupPath); err != nil {
			continue
		}

		if _, err := os.Stat(f.OriginalPath); err == nil {
			rel, _ := filepath.Rel(m.installDir, f.OriginalPath)
			if isSystemFile(rel) {
				continue
			}
			if _, err := m.quarantine.Move(f.OriginalPath, fmt.Sprintf("profile activation conflict for %s", target.ProfileID)); err != nil {
				return fmt.Errorf("quarantine blocker at %s: %w", f.OriginalPath, err)
			}
		}

		if err := os.MkdirAll(filepath.Dir(f.OriginalPath), 0o755); err != nil {
			return fmt.Errorf("recreate directory for %s: %w", f.OriginalPath, err)
		}
		if err := os.Rename(f.BackupPath, f.OriginalPath); err != nil {
			return fmt.Errorf("activate %s: %w", f.OriginalPath, err)
		}
	}
	return nil
}
