package tracking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestDetectLauncher_FromArgs(t *testing.T) {
	info := &ProcessInfo{
		PID:  999999, // unlikely to resolve to a real process
		Args: []string{"/home/user/.steam/steamapps/common/Game/game.exe"},
	}
	if got := detectLauncher(info); got != LauncherSteamProton {
		t.Fatalf("expected SteamProton, got %v", got)
	}

	info2 := &ProcessInfo{PID: 999999, Args: []string{"lutris-wrapper", "run"}}
	if got := detectLauncher(info2); got != LauncherLutris {
		t.Fatalf("expected Lutris, got %v", got)
	}

	info3 := &ProcessInfo{PID: 999999, Args: []string{"/usr/bin/plain-binary"}}
	if got := detectLauncher(info3); got != LauncherUnknown {
		t.Fatalf("expected Unknown, got %v", got)
	}
}

func TestEnvPrefixCandidate(t *testing.T) {
	env := map[string]string{"WINEPREFIX": "/home/user/.wine"}
	if got := envPrefixCandidate(env); got != "/home/user/.wine" {
		t.Fatalf("expected WINEPREFIX value, got %q", got)
	}

	env2 := map[string]string{"STEAM_COMPAT_DATA_PATH": "/home/user/compatdata/123"}
	want := filepath.Join("/home/user/compatdata/123", "pfx")
	if got := envPrefixCandidate(env2); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got := envPrefixCandidate(map[string]string{}); got != "" {
		t.Fatalf("expected empty candidate, got %q", got)
	}
}

func TestValidPrefix(t *testing.T) {
	dir := t.TempDir()
	if validPrefix(dir) {
		t.Fatal("expected empty dir to be invalid prefix")
	}

	if err := os.Mkdir(filepath.Join(dir, "drive_c"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !validPrefix(dir) {
		t.Fatal("expected dir with drive_c to be valid prefix")
	}
}

func TestDetectGamePrefix_FromEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "drive_c"), 0o755); err != nil {
		t.Fatal(err)
	}

	info := &ProcessInfo{
		PID: 999999,
		Env: map[string]string{"WINEPREFIX": dir},
	}
	got, ok := detectGamePrefix(info)
	if !ok || got != dir {
		t.Fatalf("expected prefix %q, got %q (ok=%v)", dir, got, ok)
	}
}

func TestAddRecursive_MissingRootTolerated(t *testing.T) {
	// addRecursive must not error on a root that doesn't exist yet;
	// sessions can start before a prefix is created.
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := addRecursive(w, dir); err != nil {
		t.Fatalf("expected nil error for missing root, got %v", err)
	}
}
