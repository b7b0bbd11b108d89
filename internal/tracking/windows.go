//go:build windows

package tracking

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/savetrackerd/savetrackerd/internal/procmon"
)

// windowsEngine is the native-Windows Tracking Engine variant. It
// discovers processes via a toolhelp32 snapshot (no ETW consumer
// exists anywhere in the dependency set this module draws from) and
// reuses the same fsnotify-backed write watcher as CompatEngine, since
// fsnotify's Windows backend is itself built on ReadDirectoryChangesW
// — a legitimate native primitive, not a compatibility shim.
type windowsEngine struct {
	logger *zap.Logger
	inner  *CompatEngine

	mu    sync.Mutex
	known map[uint32]string
}

func newWindowsEngine(logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &windowsEngine{
		logger: logger.With(zap.String("component", "tracking.windows")),
		inner:  NewCompatEngine(logger).(*CompatEngine),
		known:  make(map[uint32]string),
	}
}

func (e *windowsEngine) FindGameProcess(target string) (*ProcessInfo, error) {
	snap, err := snapshotProcesses()
	if err != nil {
		return nil, fmt.Errorf("snapshot processes: %w", err)
	}

	targetLower := strings.ToLower(target)
	for _, entry := range snap {
		if strings.Contains(strings.ToLower(entry.exe), targetLower) ||
			strings.ToLower(filepath.Base(entry.exe)) == targetLower {
			return &ProcessInfo{
				PID:     int32(entry.pid),
				ExePath: entry.exe,
				Env:     map[string]string{},
			}, nil
		}
	}
	return nil, fmt.Errorf("no running process matched %q", target)
}

func (e *windowsEngine) DetectLauncher(info *ProcessInfo) Launcher {
	return detectLauncher(info)
}

func (e *windowsEngine) DetectGamePrefix(info *ProcessInfo) (string, bool) {
	// Native Windows titles run outside any compatibility prefix.
	return "", false
}

// Start begins a toolhelp32-based periodic process scan (feeding mon
// the same way procmon's periodic scan does) and delegates write
// observation to the embedded CompatEngine's fsnotify watcher.
func (e *windowsEngine) Start(ctx context.Context, installDir string, prefix string, mon *procmon.Monitor) error {
	if err := e.inner.Start(ctx, installDir, prefix, mon); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.mu.Unlock()

	go e.scanLoop(runCtx, mon)
	_ = cancel // lifetime owned by ctx; inner.Stop handles the watcher side
	return nil
}

func (e *windowsEngine) scanLoop(ctx context.Context, mon *procmon.Monitor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := snapshotProcesses()
			if err != nil {
				e.logger.Debug("toolhelp32 snapshot failed", zap.Error(err))
				continue
			}
			for _, entry := range snap {
				if parent, ok := e.known[entry.pid]; ok && parent == entry.exe {
					continue
				}
				e.known[entry.pid] = entry.exe
				if entry.ppid != 0 {
					mon.HandleNewProcess(int32(entry.pid), int32(entry.ppid))
				}
			}
		}
	}
}

func (e *windowsEngine) Stop() error {
	return e.inner.Stop()
}

func (e *windowsEngine) Events() <-chan FileAccessEvent {
	return e.inner.Events()
}

type processEntry struct {
	pid  uint32
	ppid uint32
	exe  string
}

// snapshotProcesses enumerates running processes via
// CreateToolhelp32Snapshot, the standard native alternative to /proc
// scanning on Windows.
func snapshotProcesses() ([]processEntry, error) {
	handle, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(handle)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(handle, &entry); err != nil {
		return nil, err
	}

	var out []processEntry
	for {
		name := windows.UTF16ToString(entry.ExeFile[:])
		out = append(out, processEntry{
			pid:  entry.ProcessID,
			ppid: entry.ParentProcessID,
			exe:  name,
		})
		if err := windows.Process32Next(handle, &entry); err != nil {
			break
		}
	}
	return out, nil
}
