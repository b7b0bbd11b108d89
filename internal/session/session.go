// Package session implements the capture-session lifecycle (spec.md
// §5): one cancellation token threaded through the tracking engine,
// the periodic process scanner, and the process-exit waiter, with a
// bounded shutdown sequence and a grace period before the final file
// list is taken.
package session

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/collector"
	"github.com/savetrackerd/savetrackerd/internal/errs"
	"github.com/savetrackerd/savetrackerd/internal/pathcontract"
	"github.com/savetrackerd/savetrackerd/internal/pathfilter"
	"github.com/savetrackerd/savetrackerd/internal/procmon"
	"github.com/savetrackerd/savetrackerd/internal/tracking"
)

// shutdownTimeout bounds how long Stop waits for the tracking engine
// and its watchers to release OS resources.
const shutdownTimeout = 3 * time.Second

// gracePeriod is how long Stop waits, after the game process has
// exited, before taking the final file list — letting last-moment
// renames and flushes land.
const gracePeriod = 5 * time.Second

// processPollInterval is how often the exit-waiter checks liveness.
const processPollInterval = 500 * time.Millisecond

// Config names everything a session needs to start capturing one
// game's process.
type Config struct {
	GameID      string
	ProfileID   string
	InstallDir  string
	Executables []string
	MaxFiles    int
	MaxTotalSizeBytes int64
	PeriodicScan time.Duration
}

// Result is the session-end summary handed to the Upload Orchestrator.
type Result struct {
	GameID        string
	ProfileID     string
	InstallDir    string
	Prefix        string
	Files         []string
	CapBreached   bool
	PlaytimeDelta time.Duration
	StartedAt     time.Time
	ProcessExited time.Time
}

// Session is one capture run: from findGameProcess through the final
// grace-period file list.
type Session struct {
	logger *zap.Logger
	cfg    Config

	engine    tracking.Engine
	monitor   *procmon.Monitor
	collector *collector.Collector
	checksums *checksumstore.Store

	info   *tracking.ProcessInfo
	prefix string

	startedAt time.Time
	exitedAt  time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	waitErr error
}

// New constructs a Session ready for Start. checksumStore may be nil
// if replay-of-prior-knowledge and the final commit are handled by the
// caller instead.
func New(cfg Config, checksumStore *checksumstore.Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	filter := pathfilter.New(cfg.InstallDir, cfg.Executables)
	ignore := pathfilter.NewIgnoreRegistry()
	caps := collector.Caps{MaxFiles: cfg.MaxFiles, MaxTotalSize: cfg.MaxTotalSizeBytes}

	return &Session{
		logger:    logger.With(zap.String("component", "session"), zap.String("game_id", cfg.GameID)),
		cfg:       cfg,
		engine:    tracking.New(logger),
		monitor:   procmon.New(cfg.InstallDir, logger),
		collector: collector.New(filter, ignore, caps, logger),
		checksums: checksumStore,
		done:      make(chan struct{}),
	}
}

// Start resolves the game process, detects its compatibility-layer
// prefix (the launcher is not classified here), opens
// the tracking engine, replays prior knowledge, and begins the
// periodic scanner and the process-exit waiter.
func (s *Session) Start(ctx context.Context, target string) error {
	info, err := s.engine.FindGameProcess(target)
	if err != nil {
		return errs.Wrap(errs.ErrCaptureUnavailable, "find game process for %s", target)
	}
	s.info = info
	s.monitor.Initialize(info.PID)

	if prefix, ok := s.engine.DetectGamePrefix(info); ok {
		s.prefix = prefix
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startedAt = time.Now()

	if err := s.engine.Start(sessCtx, s.cfg.InstallDir, s.prefix, s.monitor); err != nil {
		cancel()
		return errs.Wrap(errs.ErrCaptureUnavailable, "start tracking engine")
	}

	s.replayPriorKnowledge()

	go s.consumeEvents(sessCtx)

	interval := s.cfg.PeriodicScan
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go s.monitor.StartPeriodicScan(sessCtx, info.PID, interval)

	go s.waitForExit(sessCtx, info.PID)

	return nil
}

// replayPriorKnowledge injects a synthetic observation for every file
// the checksum store already knows about and that still exists, so
// the session re-confirms known files without requiring a fresh write.
func (s *Session) replayPriorKnowledge() {
	if s.checksums == nil {
		return
	}
	manifest, err := s.checksums.Load(s.cfg.InstallDir, s.cfg.ProfileID)
	if err != nil {
		return
	}
	for portable := range manifest.Files {
		abs := pathcontract.Expand(portable, s.cfg.InstallDir, s.prefix)
		s.collector.Observe(abs)
	}
}

func (s *Session) consumeEvents(ctx context.Context) {
	events := s.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.monitor.ShouldAdmitWrite(ev.PID, ev.Path) {
				continue
			}
			s.collector.Observe(ev.Path)
		}
	}
}

// waitForExit polls the game process's liveness, recording the exit
// timestamp as soon as it disappears; play-time is computed from this
// timestamp, not from whenever Stop happens to be called.
func (s *Session) waitForExit(ctx context.Context, pid int32) {
	defer close(s.done)
	ticker := time.NewTicker(processPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.waitErr = ctx.Err()
			return
		case <-ticker.C:
			alive, err := process.PidExists(pid)
			if err != nil || alive {
				continue
			}
			s.exitedAt = time.Now()
			return
		}
	}
}

// WaitForExit blocks until the tracked process has exited or ctx is
// cancelled.
func (s *Session) WaitForExit(ctx context.Context) error {
	select {
	case <-s.done:
		return s.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the session's background tasks, awaits the tracking
// engine's shutdown (bounded by shutdownTimeout), waits out the grace
// period, and returns the final capture result. Safe to call whether
// or not the process has already exited.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	if s.cancel != nil {
		s.cancel()
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.engine.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			s.logger.Warn("tracking engine stop reported error", zap.Error(err))
		}
	case <-time.After(shutdownTimeout):
		s.logger.Warn("tracking engine stop timed out", zap.Duration("timeout", shutdownTimeout))
	}

	select {
	case <-time.After(gracePeriod):
	case <-ctx.Done():
	}

	exitTime := s.exitedAt
	if exitTime.IsZero() {
		exitTime = time.Now()
	}
	playtime := exitTime.Sub(s.startedAt)
	if playtime < 0 {
		playtime = 0
	}

	return &Result{
		GameID:        s.cfg.GameID,
		ProfileID:     s.cfg.ProfileID,
		InstallDir:    s.cfg.InstallDir,
		Prefix:        s.prefix,
		Files:         s.collector.FinalUploadList(),
		CapBreached:   s.collector.CapBreached(),
		PlaytimeDelta: playtime,
		StartedAt:     s.startedAt,
		ProcessExited: exitTime,
	}, nil
}
