package checksumstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_LoadAbsentReturnsEmpty(t *testing.T) {
	s := New(nil)
	m, err := s.Load(t.TempDir(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 0 {
		t.Fatalf("expected empty manifest, got %d files", len(m.Files))
	}
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s := New(nil)

	m := emptyManifest()
	m.Files["%GAMEPATH%/saves/slot1.sav"] = FileEntry{Checksum: "abc123", FileSize: 42}

	if err := s.Save(m, dir, "default"); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(dir, "default")
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := loaded.Files["%GAMEPATH%/saves/slot1.sav"]
	if !ok || entry.Checksum != "abc123" || entry.FileSize != 42 {
		t.Fatalf("roundtrip mismatch: %+v", loaded.Files)
	}
}

func TestStore_MigratesFromLegacyFilename(t *testing.T) {
	dir := t.TempDir()
	s := New(nil)

	legacy := emptyManifest()
	legacy.Files["%GAMEPATH%/a.sav"] = FileEntry{Checksum: "h1", FileSize: 1}
	if err := s.saveLocked(legacy, legacyDocPath(dir)); err != nil {
		t.Fatal(err)
	}

	m, err := s.Load(dir, "secondary")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Files["%GAMEPATH%/a.sav"]; !ok {
		t.Fatalf("expected migrated entry, got %+v", m.Files)
	}
}

func TestFileHash_Streaming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.sav")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := FileHash(path)
	if err != nil {
		t.Fatal(err)
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if hash != want {
		t.Fatalf("got %q want %q", hash, want)
	}
}

func TestUpdateBatch_MergesAndTracksPlaytime(t *testing.T) {
	dir := t.TempDir()
	s := New(nil)

	abs := filepath.Join(dir, "slot1.sav")
	updates := []Update{{AbsPath: abs, Hash: "hh", Size: 10, LastModified: time.Now()}}

	if err := s.UpdateBatch(updates, dir, "default", "", 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	m, err := s.Load(dir, "default")
	if err != nil {
		t.Fatal(err)
	}
	if time.Duration(m.PlayTime) != 5*time.Minute {
		t.Fatalf("expected playtime 5m, got %v", time.Duration(m.PlayTime))
	}
	if len(m.Files) != 1 {
		t.Fatalf("expected 1 file entry, got %d", len(m.Files))
	}
}

func TestCountExistingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.sav")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := emptyManifest()
	m.Files["%GAMEPATH%/present.sav"] = FileEntry{}
	m.Files["%GAMEPATH%/missing.sav"] = FileEntry{}

	count := CountExistingFiles(m, dir, "")
	if count != 1 {
		t.Fatalf("expected 1 existing file, got %d", count)
	}
}
