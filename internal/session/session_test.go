package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
)

func TestManager_TryAcquireAndRelease(t *testing.T) {
	m := NewManager()
	sess := &Session{}

	if err := m.TryAcquire("game-1", sess); err != nil {
		t.Fatal(err)
	}
	if err := m.TryAcquire("game-1", sess); err != ErrAlreadyCapturing {
		t.Fatalf("expected ErrAlreadyCapturing, got %v", err)
	}

	m.Release("game-1")
	if err := m.TryAcquire("game-1", sess); err != nil {
		t.Fatalf("expected re-acquire after release to succeed, got %v", err)
	}
}

func TestManager_Active(t *testing.T) {
	m := NewManager()
	if _, ok := m.Active("game-1"); ok {
		t.Fatal("expected no active session before acquire")
	}
	sess := &Session{}
	m.TryAcquire("game-1", sess)
	got, ok := m.Active("game-1")
	if !ok || got != sess {
		t.Fatal("expected to retrieve the acquired session")
	}
}

func TestSession_ReplayPriorKnowledge(t *testing.T) {
	installDir := t.TempDir()
	savePath := filepath.Join(installDir, "slot1.sav")
	if err := os.WriteFile(savePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := checksumstore.New(nil)
	if err := store.UpdateBatch(
		[]checksumstore.Update{{AbsPath: savePath, Hash: "abc", Size: 1, LastModified: time.Now()}},
		installDir, "default", "", 0,
	); err != nil {
		t.Fatal(err)
	}

	s := New(Config{GameID: "game-1", ProfileID: "default", InstallDir: installDir, MaxFiles: 500, MaxTotalSizeBytes: 100 << 20}, store, nil)
	s.replayPriorKnowledge()

	tracked := s.collector.TrackedFiles()
	if len(tracked) != 1 {
		t.Fatalf("expected replay to observe 1 known file, got %d", len(tracked))
	}
}

func TestSession_Stop_ComputesPlaytimeFromProcessExit(t *testing.T) {
	s := New(Config{GameID: "game-1", ProfileID: "default", InstallDir: t.TempDir(), MaxFiles: 500, MaxTotalSizeBytes: 100 << 20}, nil, nil)
	s.startedAt = time.Now().Add(-time.Hour)
	s.exitedAt = s.startedAt.Add(10 * time.Minute) // process exited long before "now"
	close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the grace-period wait; Stop's select respects ctx.Done()
	res, err := s.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.PlaytimeDelta != 10*time.Minute {
		t.Fatalf("expected playtime derived from process-exit timestamp, got %v", res.PlaytimeDelta)
	}
}
