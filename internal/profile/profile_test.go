package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/errs"
)

func TestSwitchProfile_RefusesWhileGameRunning(t *testing.T) {
	m := New(t.TempDir(), checksumstore.New(nil), nil)
	err := m.SwitchProfile("default", "hardcore", true)
	if err != errs.ErrGameRunning {
		t.Fatalf("expected ErrGameRunning, got %v", err)
	}
}

func TestSwitchProfile_NoopWhenSameProfile(t *testing.T) {
	m := New(t.TempDir(), checksumstore.New(nil), nil)
	if err := m.SwitchProfile("default", "default", false); err != nil {
		t.Fatal(err)
	}
}

func TestSwitchProfile_BackupAndRestore(t *testing.T) {
	installDir := t.TempDir()
	savePath := filepath.Join(installDir, "saves", "slot1.sav")
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(savePath, []byte("default-profile-data"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The live profile's file list comes from the checksum store, so
	// record the save there as an earlier upload would have.
	store := checksumstore.New(nil)
	if err := store.UpdateBatch([]checksumstore.Update{{
		AbsPath: savePath, Hash: "h", Size: int64(len("default-profile-data")), LastModified: time.Now(),
	}}, installDir, "default", "", 0); err != nil {
		t.Fatal(err)
	}
	m := New(installDir, store, nil)

	if err := m.SwitchProfile("default", "hardcore", false); err != nil {
		t.Fatal(err)
	}

	// Original path should now be backed up, not present.
	if _, err := os.Stat(savePath); !os.IsNotExist(err) {
		t.Fatal("expected original save to be backed up away")
	}
	backupPath := savePath + backupSuffix("default")
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatal("expected backup file to exist")
	}

	// Switching back restores it (hardcore profile has no files of its own).
	if err := m.SwitchProfile("hardcore", "default", false); err != nil {
		t.Fatal(err)
	}
	restored, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "default-profile-data" {
		t.Fatalf("unexpected restored content: %q", restored)
	}
}

func TestIsSystemFile(t *testing.T) {
	cases := map[string]bool{
		"game.exe":                 true,
		"engine.dll":               true,
		"saves/slot1.sav":          false,
		".savetracker_manifest.json": true,
		".ST_PROFILES/default.manifest.json": true,
	}
	for path, want := range cases {
		if got := isSystemFile(path); got != want {
			t.Fatalf("isSystemFile(%q) = %v, want %v", path, got, want)
		}
	}
}
