package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/errs"
	"github.com/savetrackerd/savetrackerd/internal/store"
	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Config{
		Path:          filepath.Join(t.TempDir(), "savetracker.db"),
		EncryptionKey: "test-passphrase",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeAgent writes a POSIX shell script that dispatches the handful
// of transfer-agent subcommands the Orchestrator exercises: copyto
// (plain file copy, standing in for a real remote write), lsjson
// (always empty), and lsf (always "not found", exit 3).
func fakeAgent(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "fakeagent.sh")
	content := "#!/bin/sh\ncase \"$1\" in\n  copyto) cp \"$2\" \"$3\" ;;\n  lsjson) echo -n '[]' ;;\n  lsf) exit 3 ;;\n  *) exit 0 ;;\nesac\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestUpload_FullRoundtrip(t *testing.T) {
	agent := fakeAgent(t)
	xfer := transfer.New(agent, "/dev/null", nil)

	installDir := t.TempDir()
	savePath := filepath.Join(installDir, "saves", "slot1.sav")
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(savePath, []byte("save-data"), 0o644); err != nil {
		t.Fatal(err)
	}

	db := openTestDB(t)
	game := store.Game{
		ID: "game-1", Name: "Example", InstallDir: installDir,
		ExecutableNames: []string{"example.exe"}, AutoUploadable: true, ActiveProfileID: "default",
	}
	if err := db.UpsertGame(game); err != nil {
		t.Fatal(err)
	}

	remoteDir := t.TempDir()
	workDir := t.TempDir()
	cstore := checksumstore.New(nil)

	o := New(db, cstore, xfer, workDir, nil)

	res := SessionResult{
		GameID: "game-1", ProfileID: "default", InstallDir: installDir,
		Files: []string{savePath},
	}

	report, err := o.Upload(context.Background(), res, remoteDir)
	if err != nil {
		t.Fatal(err)
	}
	if report.FilesPacked != 1 {
		t.Fatalf("expected 1 file packed, got %d", report.FilesPacked)
	}
	if _, err := os.Stat(report.ArchivePath); err != nil {
		t.Fatalf("expected uploaded archive at %s: %v", report.ArchivePath, err)
	}

	manifest, err := cstore.Load(installDir, "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Files) != 1 {
		t.Fatalf("expected checksum store to have committed 1 entry, got %d", len(manifest.Files))
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp archive to be cleaned up, found %v", entries)
	}
}

func TestUpload_RefusesNonAutoUploadable(t *testing.T) {
	agent := fakeAgent(t)
	xfer := transfer.New(agent, "/dev/null", nil)

	db := openTestDB(t)
	if err := db.UpsertGame(store.Game{ID: "game-2", Name: "NoAuto", InstallDir: t.TempDir(), AutoUploadable: false}); err != nil {
		t.Fatal(err)
	}

	o := New(db, checksumstore.New(nil), xfer, t.TempDir(), nil)
	_, err := o.Upload(context.Background(), SessionResult{GameID: "game-2"}, t.TempDir())
	if err == nil {
		t.Fatal("expected validation failure for non-auto-uploadable game")
	}
	if cat, _ := errs.Classify(err); cat != errs.CategoryValidation {
		t.Fatalf("expected validation category, got %v", cat)
	}
}

func TestGameIDRemoteArchivePath(t *testing.T) {
	got := gameIDRemoteArchivePath("remote:games/example/Additional Profiles", "hardcore.sta")
	want := "remote:games/example/hardcore.sta"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
