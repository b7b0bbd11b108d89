// Package procmon implements the Process Monitor (C2): the live set of
// process IDs whose file writes are attributed to a capture session.
// The parent-gating rule in handleNewProcess is the core anti-noise
// mechanism described in spec.md §4.2.
package procmon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Monitor holds the thread-safe set of tracked process IDs for one
// capture session, plus the separate launcher-root set used for the
// Steam/equivalent userdata exception.
type Monitor struct {
	logger *zap.Logger

	mu          sync.RWMutex
	tracked     map[int32]struct{}
	launcherIDs map[int32]struct{}
	installDir  string
}

// New constructs a Monitor scoped to one session's install directory.
func New(installDir string, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:      logger.With(zap.String("component", "procmon")),
		tracked:     make(map[int32]struct{}),
		launcherIDs: make(map[int32]struct{}),
		installDir:  installDir,
	}
}

// Initialize seeds the tracked set with the session's initial pid.
func (m *Monitor) Initialize(pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[pid] = struct{}{}
}

// MarkLauncherRoot records pid as a launcher root process (e.g. the
// Steam client), subject to the userdata-path exception rather than
// ordinary parent gating.
func (m *Monitor) MarkLauncherRoot(pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launcherIDs[pid] = struct{}{}
}

// IsTracked reports whether pid is in the tracked set.
func (m *Monitor) IsTracked(pid int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tracked[pid]
	return ok
}

// IsLauncherRoot reports whether pid is a marked launcher root.
func (m *Monitor) IsLauncherRoot(pid int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.launcherIDs[pid]
	return ok
}

// HandleNewProcess adds childPid to the tracked set iff parentPid is
// already tracked. This is the rule that keeps launcher helpers
// (browsers, overlays, update daemons) from contaminating attribution.
func (m *Monitor) HandleNewProcess(childPid, parentPid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracked[parentPid]; !ok {
		return
	}
	m.tracked[childPid] = struct{}{}
	m.logger.Debug("tracking child process",
		zap.Int32("child_pid", childPid), zap.Int32("parent_pid", parentPid))
}

// HandleProcessExit removes pid from the tracked set.
func (m *Monitor) HandleProcessExit(pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, pid)
}

// ShouldAdmitWrite decides whether a write from pid to path should be
// attributed to the session: either pid is tracked outright, or pid is
// a launcher root and path matches the known cloud-save convention
// (contains both "userdata" and "remote").
func (m *Monitor) ShouldAdmitWrite(pid int32, path string) bool {
	if m.IsTracked(pid) {
		return true
	}
	if m.IsLauncherRoot(pid) {
		lower := strings.ToLower(path)
		return strings.Contains(lower, "userdata") && strings.Contains(lower, "remote")
	}
	return false
}

// ScanForChildren does a one-shot descendant enumeration of rootPid,
// adding every descendant to the tracked set regardless of the usual
// gating rule (they are, by construction, descendants of an already
// tracked process).
func (m *Monitor) ScanForChildren(rootPid int32) {
	children := descendantsOf(rootPid)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pid := range children {
		m.tracked[pid] = struct{}{}
	}
}

// ScanForProcessesInDirectory does a one-shot scan adding every
// running process whose executable path lies under the install
// directory. Catches helpers detached from the process tree.
func (m *Monitor) ScanForProcessesInDirectory() {
	if m.installDir == "" {
		return
	}
	procs, err := process.Processes()
	if err != nil {
		m.logger.Debug("process enumeration failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	installLower := strings.ToLower(m.installDir)
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(exe), installLower) {
			m.tracked[p.Pid] = struct{}{}
		}
	}
}

// StartPeriodicScan loops ScanForChildren and ScanForProcessesInDirectory
// until cancel fires. Default interval is 30s (spec.md §4.2).
func (m *Monitor) StartPeriodicScan(ctx context.Context, rootPid int32, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ScanForChildren(rootPid)
			m.ScanForProcessesInDirectory()
		}
	}
}

// Snapshot returns a copy of the currently tracked pid set.
func (m *Monitor) Snapshot() []int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int32, 0, len(m.tracked))
	for pid := range m.tracked {
		out = append(out, pid)
	}
	return out
}

// descendantsOf walks gopsutil's process list to find every process
// transitively parented by rootPid.
func descendantsOf(rootPid int32) []int32 {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}

	childrenOf := make(map[int32][]int32)
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		childrenOf[ppid] = append(childrenOf[ppid], p.Pid)
	}

	var out []int32
	queue := []int32{rootPid}
	seen := map[int32]bool{rootPid: true}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[pid] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}
