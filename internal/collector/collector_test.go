package collector

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/savetrackerd/savetrackerd/internal/pathfilter"
)

func newTestCollector(t *testing.T, caps Caps) *Collector {
	t.Helper()
	filter := pathfilter.New(t.TempDir(), nil)
	ignore := pathfilter.NewIgnoreRegistry()
	return New(filter, ignore, caps, nil)
}

func TestCollector_CompanionResolution(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "slot1.sav")
	tmp := filepath.Join(dir, "slot1.sav.tmp")

	if err := os.WriteFile(tmp, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCollector(t, Caps{})
	c.Observe(tmp)

	candidates := c.UploadCandidates()
	sort.Strings(candidates)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates (main + companion), got %v", candidates)
	}

	found := map[string]bool{}
	for _, p := range candidates {
		found[filepath.Base(p)] = true
	}
	if !found["slot1.sav.tmp"] || !found["slot1.sav"] {
		t.Fatalf("expected both tmp and companion in candidates, got %v", candidates)
	}

	// Main never materializes; companion does at session end.
	if err := os.Remove(tmp); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(main, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	final := c.FinalUploadList()
	if len(final) != 1 || filepath.Base(final[0]) != "slot1.sav" {
		t.Fatalf("expected final list to contain only slot1.sav, got %v", final)
	}
}

func TestCollector_MaxFilesCap(t *testing.T) {
	dir := t.TempDir()
	c := newTestCollector(t, Caps{MaxFiles: 3, MaxTotalSize: 1 << 20})

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, filepathName(i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		c.Observe(p)
	}

	if !c.CapBreached() {
		t.Fatal("expected cap breach flag set")
	}
	if len(c.TrackedFiles()) != 3 {
		t.Fatalf("expected exactly 3 tracked files, got %d", len(c.TrackedFiles()))
	}
}

func TestCollector_MaxTotalSizeCap(t *testing.T) {
	dir := t.TempDir()
	c := newTestCollector(t, Caps{MaxFiles: 500, MaxTotalSize: 10})

	small := filepath.Join(dir, "small.sav")
	big := filepath.Join(dir, "big.sav")
	if err := os.WriteFile(small, make([]byte, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(big, make([]byte, 20), 0o644); err != nil {
		t.Fatal(err)
	}

	c.Observe(small)
	c.Observe(big)

	tracked := c.TrackedFiles()
	if len(tracked) != 1 {
		t.Fatalf("expected only the small file tracked, got %v", tracked)
	}
}

func TestCollector_CompanionRespectsMaxTotalSizeCap(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "slot1.sav")
	tmp := filepath.Join(dir, "slot1.sav.tmp")

	if err := os.WriteFile(tmp, make([]byte, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(main, make([]byte, 20), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCollector(t, Caps{MaxFiles: 500, MaxTotalSize: 10})
	c.Observe(tmp)

	candidates := c.UploadCandidates()
	if len(candidates) != 1 {
		t.Fatalf("expected only the observed file as a candidate, companion should be capped; got %v", candidates)
	}
	if filepath.Base(candidates[0]) != "slot1.sav.tmp" {
		t.Fatalf("expected slot1.sav.tmp, got %v", candidates)
	}
}

func TestCollector_IgnoredMainKeepsCompanion(t *testing.T) {
	dir := t.TempDir()
	ignore := pathfilter.NewIgnoreRegistry()
	ignore.AddFilename("slot1.sav.tmp")

	filter := pathfilter.New(dir, nil)
	c := New(filter, ignore, Caps{}, nil)

	tmp := filepath.Join(dir, "slot1.sav.tmp")
	if err := os.WriteFile(tmp, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c.Observe(tmp)

	candidates := c.UploadCandidates()
	found := map[string]bool{}
	for _, p := range candidates {
		found[filepath.Base(p)] = true
	}
	if found["slot1.sav.tmp"] {
		t.Fatal("expected ignored main file to be excluded")
	}
	if !found["slot1.sav"] {
		t.Fatal("expected companion to still be added despite main being ignored")
	}
}

func filepathName(i int) string {
	return "file" + string(rune('a'+i)) + ".sav"
}
