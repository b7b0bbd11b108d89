package pathfilter

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestPathFilter_ShouldTrack(t *testing.T) {
	installDir := "/Games/MyGame"
	systemBinary := "/usr/bin/notepad"
	if runtime.GOOS == "windows" {
		installDir = `C:\Games\MyGame`
		systemBinary = `C:\Windows\System32\notepad.exe`
	}
	gameExe := filepath.Join(installDir, "game.exe")
	pf := New(installDir, []string{gameExe})

	tests := []struct {
		path string
		want bool
		why  string
	}{
		{filepath.Join(installDir, "saves", "slot1.sav"), true, "user data leaf"},
		{gameExe, false, "is the tracked executable"},
		{filepath.Join(installDir, "bin", "engine.dll"), false, "engine binary outside user-data leaf"},
		{systemBinary, false, "system root"},
		{filepath.Join(installDir, "config", "settings.json"), true, "config leaf"},
	}

	for _, tt := range tests {
		if got := pf.ShouldTrack(tt.path); got != tt.want {
			t.Errorf("ShouldTrack(%q) = %v, want %v (%s)", tt.path, got, tt.want, tt.why)
		}
	}
}

func TestIgnoreRegistry_Defaults(t *testing.T) {
	r := NewIgnoreRegistry()

	tests := []struct {
		path string
		want bool
	}{
		{"Thumbs.db", true},
		{"desktop.ini", true},
		{"save.dat", false},
		{"progress.log", true},
	}

	for _, tt := range tests {
		if got := r.ShouldIgnore(tt.path); got != tt.want {
			t.Errorf("ShouldIgnore(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIgnoreRegistry_AddRemoveKeyword(t *testing.T) {
	r := NewIgnoreRegistry()
	r.AddKeyword("quarantine_me")
	if !r.ShouldIgnore(`C:\saves\quarantine_me_file.dat`) {
		t.Fatal("expected keyword match to be ignored")
	}
	r.RemoveKeyword("quarantine_me")
	if r.ShouldIgnore(`C:\saves\quarantine_me_file.dat`) {
		t.Fatal("expected keyword removal to stop matching")
	}
}
