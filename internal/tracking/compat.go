package tracking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/procmon"
)

// CompatEngine is the Tracking Engine variant used on Linux, and on
// Windows for titles actually running under a Proton/Wine prefix. It
// discovers processes with gopsutil (a stand-in for /proc scanning)
// and observes writes with a recursive fsnotify watcher, since no
// ETW-equivalent kernel trace exists outside native Windows.
type CompatEngine struct {
	logger *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	mon     *procmon.Monitor
	events  chan FileAccessEvent
	roots   []string
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	readTracking bool
}

// NewCompatEngine constructs the filesystem-watch tracking engine.
func NewCompatEngine(logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompatEngine{
		logger: logger.With(zap.String("component", "tracking.compat")),
		events: make(chan FileAccessEvent, 256),
	}
}

func (e *CompatEngine) FindGameProcess(target string) (*ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	targetLower := strings.ToLower(target)
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		if strings.Contains(strings.ToLower(exe), targetLower) || strings.ToLower(filepath.Base(exe)) == targetLower {
			return e.processInfo(p), nil
		}
	}
	return nil, fmt.Errorf("no running process matched %q", target)
}

func (e *CompatEngine) processInfo(p *process.Process) *ProcessInfo {
	exe, _ := p.Exe()
	cmdline, _ := p.CmdlineSlice()
	envSlice, _ := p.Environ()
	return &ProcessInfo{
		PID:     p.Pid,
		ExePath: exe,
		Args:    cmdline,
		Env:     envSliceToMap(envSlice),
	}
}

func (e *CompatEngine) DetectLauncher(info *ProcessInfo) Launcher {
	return detectLauncher(info)
}

func (e *CompatEngine) DetectGamePrefix(info *ProcessInfo) (string, bool) {
	return detectGamePrefix(info)
}

// Start opens a recursive fsnotify watcher over installDir and, when
// prefix is non-empty, over prefix's drive_c directory as well. Write
// events are filtered through mon before being emitted.
func (e *CompatEngine) Start(ctx context.Context, installDir string, prefix string, mon *procmon.Monitor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	roots := []string{installDir}
	if prefix != "" {
		roots = append(roots, filepath.Join(prefix, "drive_c"))
	}

	for _, root := range roots {
		if err := addRecursive(watcher, root); err != nil {
			e.logger.Warn("failed to watch root", zap.String("root", root), zap.Error(err))
		}
	}

	e.watcher = watcher
	e.mon = mon
	e.roots = roots

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.loop(runCtx)

	return nil
}

func (e *CompatEngine) loop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (e *CompatEngine) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = e.watcher.Add(ev.Name)
		}
	}

	var op AccessOp
	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
		op = OpWrite
	case e.readTracking && ev.Op&fsnotify.Chmod != 0:
		op = OpRead
	default:
		return
	}

	pid := e.attributePID()
	if e.mon != nil && !e.mon.ShouldAdmitWrite(pid, ev.Name) {
		return
	}

	select {
	case e.events <- FileAccessEvent{PID: pid, Path: ev.Name, Op: op}:
	default:
		e.logger.Warn("event channel full, dropping event", zap.String("path", ev.Name))
	}
}

// attributePID returns a best-effort writer pid. fsnotify carries no
// originating pid, so the monitor's own tracked-set membership is what
// ultimately gates attribution; this just needs to name a tracked pid
// for ShouldAdmitWrite's fast path.
func (e *CompatEngine) attributePID() int32 {
	if e.mon == nil {
		return 0
	}
	snap := e.mon.Snapshot()
	if len(snap) == 0 {
		return 0
	}
	return snap[0]
}

func (e *CompatEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		e.logger.Warn("tracking engine shutdown timed out")
	}

	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

func (e *CompatEngine) Events() <-chan FileAccessEvent {
	return e.events
}

// addRecursive walks root adding every directory to watcher. Missing
// roots are tolerated: prefixes and install directories may not exist
// yet at session start.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
