package transfer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestParseLsJSON(t *testing.T) {
	data := []byte(`[
		{"Path":"default.sta","Size":1024,"ModTime":"2026-01-02T03:04:05Z","IsDir":false},
		{"Path":"subdir","Size":0,"ModTime":"2026-01-02T03:04:05Z","IsDir":true}
	]`)

	entries, err := parseLsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "default.sta" || entries[0].Size != 1024 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].IsDir {
		t.Fatalf("expected second entry to be a dir")
	}
}

func TestStreamProgress_ParsesPercentSpeedAndFile(t *testing.T) {
	input := "Transferring:\n * default.sta: 45%, 2.5MiB/s, ETA 1s\nTransferring: default.sta, 45%\n"
	var updates []ProgressUpdate
	streamProgress(bytes.NewBufferString(input), func(u ProgressUpdate) {
		updates = append(updates, u)
	})

	if len(updates) == 0 {
		t.Fatal("expected at least one progress update")
	}
	last := updates[len(updates)-1]
	if last.Percent != 45 {
		t.Fatalf("expected percent 45, got %v", last.Percent)
	}
}

func TestUnitMultiplier(t *testing.T) {
	cases := map[string]float64{"": 1, "K": 1 << 10, "M": 1 << 20, "G": 1 << 30, "T": 1 << 40}
	for unit, want := range cases {
		if got := unitMultiplier(unit); got != want {
			t.Fatalf("unit %q: got %v want %v", unit, got, want)
		}
	}
}

func TestDriver_Exists_AllowedExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "fakeagent.sh")
	content := "#!/bin/sh\nexit 3\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}

	d := New(script, "/dev/null", nil)
	d.retryAttempts = 1

	ok, err := d.Exists(context.Background(), "remote:missing.sta")
	if err != nil {
		t.Fatalf("expected exit code 3 treated as non-error, got %v", err)
	}
	if ok {
		t.Fatal("expected Exists to report false for exit code 3")
	}
}

func TestDriver_RunMetadata_SucceedsOnFirstTry(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "fakeagent.sh")
	content := "#!/bin/sh\necho -n '[]'\nexit 0\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}

	d := New(script, "/dev/null", nil)
	entries, err := d.LsJSON(context.Background(), "remote:", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty listing, got %v", entries)
	}
}

func TestDriver_Retry_GivesUpAfterAttempts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell")
	}

	counterFile := filepath.Join(t.TempDir(), "count")
	script := filepath.Join(t.TempDir(), "fakeagent.sh")
	content := "#!/bin/sh\necho x >> " + counterFile + "\n>&2 echo 'connection refused'\nexit 1\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}

	d := New(script, "/dev/null", nil)
	d.retryAttempts = 3
	d.retryDelay = 1 * time.Millisecond

	_, err := d.LsJSON(context.Background(), "remote:", false)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}

	data, rerr := os.ReadFile(counterFile)
	if rerr != nil {
		t.Fatal(rerr)
	}
	count := bytes.Count(data, []byte("x"))
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}
}
