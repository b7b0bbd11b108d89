package staarchive

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/errs"
)

func TestPackUnpack_Roundtrip(t *testing.T) {
	gameDir := t.TempDir()
	savesDir := filepath.Join(gameDir, "saves")
	if err := os.MkdirAll(savesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	filePath := filepath.Join(savesDir, "slot1.sav")
	if err := os.WriteFile(filePath, []byte("save-data"), 0o644); err != nil {
		t.Fatal(err)
	}

	metadata := GameUploadData{
		PlayTime:    Duration(90 * time.Minute),
		LastUpdated: time.Now().UTC().Truncate(time.Second),
		Files: map[string]FileChecksumRecord{
			"%GAMEPATH%/saves/slot1.sav": {Path: "%GAMEPATH%/saves/slot1.sav", Checksum: "abc", FileSize: 9},
		},
	}

	archivePath := filepath.Join(t.TempDir(), "default.sta")
	result, err := Pack(archivePath, []string{filePath}, gameDir, metadata, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.FileCount != 1 {
		t.Fatalf("expected 1 file, got %d", result.FileCount)
	}

	destDir := t.TempDir()
	unpacked, err := Unpack(archivePath, destDir, gameDir)
	if err != nil {
		t.Fatal(err)
	}
	if unpacked.Metadata.PlayTime != metadata.PlayTime {
		t.Fatalf("playtime mismatch: got %v want %v", unpacked.Metadata.PlayTime, metadata.PlayTime)
	}
	if len(unpacked.ExtractedPath) != 1 {
		t.Fatalf("expected 1 extracted path, got %d", len(unpacked.ExtractedPath))
	}

	restored, err := os.ReadFile(filepath.Join(gameDir, "saves", "slot1.sav"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "save-data" {
		t.Fatalf("unexpected restored content: %q", restored)
	}
}

func TestPeekMetadata_MatchesEmbedded(t *testing.T) {
	gameDir := t.TempDir()
	filePath := filepath.Join(gameDir, "a.sav")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	metadata := GameUploadData{PlayTime: Duration(45 * time.Minute), Files: map[string]FileChecksumRecord{}}
	archivePath := filepath.Join(t.TempDir(), "default.sta")
	if _, err := Pack(archivePath, []string{filePath}, gameDir, metadata, ""); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	peeked, err := PeekMetadata(f)
	if err != nil {
		t.Fatal(err)
	}
	if peeked == nil || peeked.PlayTime != metadata.PlayTime {
		t.Fatalf("unexpected peeked metadata: %+v", peeked)
	}
}

func TestPeekMetadata_FailsSoftOnGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	if err := os.WriteFile(path, []byte("not an archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	peeked, err := PeekMetadata(f)
	if err != nil {
		t.Fatalf("expected fail-soft nil error, got %v", err)
	}
	if peeked != nil {
		t.Fatalf("expected nil metadata for garbage input, got %+v", peeked)
	}
}

func TestArchiveName_ProfileQualified(t *testing.T) {
	if ArchiveName("") != "default.sta" {
		t.Fatalf("expected default.sta for empty profile")
	}
	if ArchiveName("default") != "default.sta" {
		t.Fatalf("expected default.sta for 'default' profile")
	}
	if got := ArchiveName("Hardcore Run"); got != "Hardcore_Run.sta" {
		t.Fatalf("expected sanitized profile name, got %q", got)
	}
}

func TestDuration_WireFormat(t *testing.T) {
	d := Duration(90 * time.Minute)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"01:30:00"` {
		t.Fatalf("expected %q, got %q", `"01:30:00"`, b)
	}

	var parsed Duration
	if err := parsed.UnmarshalJSON([]byte(`"01:30:00"`)); err != nil {
		t.Fatal(err)
	}
	if parsed != d {
		t.Fatalf("roundtrip mismatch: got %v want %v", parsed, d)
	}
}

func TestUnpack_RejectsOversizedMetadataSize(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "hostile.sta")
	header := buildHeader(0)
	binary.LittleEndian.PutUint64(header[metadataSizeOff:], uint64(1<<30))
	if err := os.WriteFile(archivePath, header, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Unpack(archivePath, t.TempDir(), t.TempDir()); err == nil {
		t.Fatal("expected error for oversized metadata size")
	} else if !errors.Is(err, errs.ErrArchiveMalformed) {
		t.Fatalf("expected ErrArchiveMalformed, got %v", err)
	}
}

func TestHeaderLayout_MagicAndVersion(t *testing.T) {
	header := buildHeader(10)
	if len(header) != headerSize {
		t.Fatalf("expected %d byte header, got %d", headerSize, len(header))
	}
	if string(header[:magicSize]) != magic {
		t.Fatalf("expected magic %q, got %q", magic, header[:magicSize])
	}
}
