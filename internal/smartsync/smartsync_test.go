package smartsync

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

func TestClassify_CloudAheadWhenLocalZero(t *testing.T) {
	got := classify(0, 90*time.Minute, 5*time.Minute)
	if got != CloudAhead {
		t.Fatalf("expected CloudAhead, got %v", got)
	}
}

func TestClassify_Similar(t *testing.T) {
	got := classify(45*time.Minute, 47*time.Minute, 5*time.Minute)
	if got != Similar {
		t.Fatalf("expected Similar, got %v", got)
	}
}

func TestClassify_LocalAhead(t *testing.T) {
	got := classify(90*time.Minute, 10*time.Minute, 5*time.Minute)
	if got != LocalAhead {
		t.Fatalf("expected LocalAhead, got %v", got)
	}
}

func TestClassify_CloudAheadBeyondThreshold(t *testing.T) {
	got := classify(45*time.Minute, 90*time.Minute, 5*time.Minute)
	if got != CloudAhead {
		t.Fatalf("expected CloudAhead, got %v", got)
	}
}

func TestAbsDuration(t *testing.T) {
	if absDuration(-5*time.Second) != 5*time.Second {
		t.Fatal("expected absolute value of negative duration")
	}
	if absDuration(5*time.Second) != 5*time.Second {
		t.Fatal("expected positive duration unchanged")
	}
}

// fakeLegacyAgent simulates a remote with no .sta archive but a
// pre-migration plain-JSON manifest, so cloudPlayTime must fall
// through to the legacy-JSON parse path rather than the STARCH peek.
func fakeLegacyAgent(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "fakeagent.sh")
	content := `#!/bin/sh
case "$1" in
  cat)
    case "$2" in
      *.legacy.json) echo -n '{"PlayTime":"01:30:00","LastUpdated":"2024-01-01T00:00:00Z","Files":{}}' ;;
      *) exit 1 ;;
    esac
    ;;
  lsf)
    case "$2" in
      *.legacy.json) exit 0 ;;
      *) exit 3 ;;
    esac
    ;;
  *) exit 0 ;;
esac
`
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestCloudPlayTime_FallsBackToLegacyJSON(t *testing.T) {
	agent := fakeLegacyAgent(t)
	xfer := transfer.New(agent, "/dev/null", nil)
	a := New(nil, xfer, nil)

	playtime, found, err := a.cloudPlayTime(context.Background(), "remote/game/default.sta")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected legacy manifest to be found")
	}
	if playtime != 90*time.Minute {
		t.Fatalf("expected 90m, got %v", playtime)
	}
}
