package pathcontract

import (
	"path/filepath"
	"testing"
)

func TestContractExpand_GamePath(t *testing.T) {
	gameDir := filepath.FromSlash("/games/MyGame")
	abs := filepath.Join(gameDir, "saves", "slot1.sav")

	portable := Contract(abs, gameDir, "")
	if portable != "%GAMEPATH%/saves/slot1.sav" {
		t.Fatalf("unexpected portable form: %q", portable)
	}

	back := Expand(portable, gameDir, "")
	if filepath.Clean(back) != filepath.Clean(abs) {
		t.Fatalf("expand roundtrip mismatch: got %q want %q", back, abs)
	}
}

func TestContractExpand_Prefix(t *testing.T) {
	gameDir := filepath.FromSlash("/games/MyGame")
	prefix := filepath.FromSlash("/home/user/.wine")
	abs := filepath.Join(prefix, "drive_c", "users", "steamuser", "Saved Games", "slot1.sav")

	portable := Contract(abs, gameDir, prefix)
	want := "%PREFIX%/drive_c/users/steamuser/Saved Games/slot1.sav"
	if portable != want {
		t.Fatalf("got %q want %q", portable, want)
	}

	back := Expand(portable, gameDir, prefix)
	if filepath.Clean(back) != filepath.Clean(abs) {
		t.Fatalf("expand roundtrip mismatch: got %q want %q", back, abs)
	}
}

func TestContract_FallsBackToAbsolute(t *testing.T) {
	abs := filepath.FromSlash("/some/unrelated/path/file.dat")
	portable := Contract(abs, "/games/MyGame", "/home/user/.wine")
	if portable != filepath.ToSlash(abs) {
		t.Fatalf("expected unchanged absolute path, got %q", portable)
	}
}

func TestExpand_UnknownTokenPassesThrough(t *testing.T) {
	got := Expand("/already/absolute/path", "/games/MyGame", "")
	want := filepath.FromSlash("/already/absolute/path")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
