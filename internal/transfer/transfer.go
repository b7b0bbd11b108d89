// Package transfer implements the Transfer Driver (C8): a thin
// wrapper around an external rclone-compatible transfer agent,
// invoked via os/exec the way lazydocker shells out to docker/podman
// and mutagen shells out to its remote agent binary — the agent's own
// wire protocol and auth are out of scope, only the subprocess
// contract matters here.
package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/errs"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second

	TransferTimeout = 10 * time.Minute
	MetadataTimeout = 20 * time.Second
)

// ProgressUpdate is a coalesced snapshot parsed from the agent's
// stderr stream during a long transfer.
type ProgressUpdate struct {
	Percent     float64
	SpeedBytesS float64
	CurrentFile string
}

// ProgressCallback receives coalesced progress updates during Copy.
type ProgressCallback func(ProgressUpdate)

// Driver wraps invocations of the external transfer agent binary.
type Driver struct {
	logger     *zap.Logger
	binaryPath string
	configPath string

	retryAttempts int
	retryDelay    time.Duration
}

// New constructs a Driver. binaryPath is the transfer agent
// executable (e.g. an rclone build); configPath is passed to every
// invocation via --config.
func New(binaryPath, configPath string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		logger:        logger.With(zap.String("component", "transfer")),
		binaryPath:    binaryPath,
		configPath:    configPath,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
}

// ListEntry is one row of an lsjson enumeration.
type ListEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	speedRe   = regexp.MustCompile(`([\d.]+)\s*([KMGT]?)iB/s`)
	fileRe    = regexp.MustCompile(`Transferring:\s*(.+?)(?:,|$)`)
)

// Copy uploads or downloads src to dst, retrying on transient
// failure and streaming coalesced progress to cb.
func (d *Driver) Copy(ctx context.Context, src, dst string, cb ProgressCallback) error {
	return d.retry(ctx, "copyto", func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, TransferTimeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, d.binaryPath, "copyto", src, dst,
			"--config", d.configPath, "--progress")

		stderr, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("open transfer agent stderr: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start transfer agent: %w", err)
		}

		go streamProgress(stderr, cb)

		if err := cmd.Wait(); err != nil {
			return classifyExitErr(err, "copyto", nil)
		}
		return nil
	})
}

func streamProgress(r io.Reader, cb ProgressCallback) {
	if cb == nil {
		io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	var last ProgressUpdate
	for scanner.Scan() {
		line := scanner.Text()
		update := last

		if m := percentRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				update.Percent = v
			}
		}
		if m := speedRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				update.SpeedBytesS = v * unitMultiplier(m[2])
			}
		}
		if m := fileRe.FindStringSubmatch(line); m != nil {
			update.CurrentFile = strings.TrimSpace(m[1])
		}

		if update != last {
			cb(update)
			last = update
		}
	}
}

func unitMultiplier(unit string) float64 {
	switch unit {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	case "T":
		return 1 << 40
	default:
		return 1
	}
}

// LsJSON enumerates remote, returning per-entry modification
// timestamps; recursive controls --recursive.
func (d *Driver) LsJSON(ctx context.Context, remote string, recursive bool) ([]ListEntry, error) {
	args := []string{"lsjson", remote, "--config", d.configPath}
	if recursive {
		args = append(args, "--recursive")
	}

	var out bytes.Buffer
	if err := d.runMetadata(ctx, "lsjson", args, &out, nil); err != nil {
		return nil, err
	}
	return parseLsJSON(out.Bytes())
}

// Exists does a light listing (lsf) to check for remote's presence.
// Exit code 3 ("directory not found") is treated as "does not exist",
// not an error.
func (d *Driver) Exists(ctx context.Context, remote string) (bool, error) {
	args := []string{"lsf", remote, "--config", d.configPath}
	err := d.runMetadata(ctx, "lsf", args, io.Discard, map[int]bool{3: true})
	if err != nil {
		if exitCode(err) == 3 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Cat reads up to count bytes from the head of remote, used for the
// Smart Sync Arbiter's archive-header peek.
func (d *Driver) Cat(ctx context.Context, remote string, count int) ([]byte, error) {
	args := []string{"cat", remote, "--count", strconv.Itoa(count), "--config", d.configPath}
	var out bytes.Buffer
	if err := d.runMetadata(ctx, "cat", args, &out, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Delete removes a single remote object, optionally excluding a glob.
func (d *Driver) Delete(ctx context.Context, remote string, exclude ...string) error {
	args := []string{"delete", remote, "--config", d.configPath}
	for _, e := range exclude {
		args = append(args, "--exclude", e)
	}
	return d.runMetadata(ctx, "delete", args, io.Discard, nil)
}

// Purge recursively removes a remote directory and its contents.
func (d *Driver) Purge(ctx context.Context, remote string) error {
	args := []string{"purge", remote, "--config", d.configPath}
	return d.runMetadata(ctx, "purge", args, io.Discard, nil)
}

// MoveTo moves a single remote object to a new path.
func (d *Driver) MoveTo(ctx context.Context, src, dst string) error {
	args := []string{"moveto", src, dst, "--config", d.configPath}
	return d.runMetadata(ctx, "moveto", args, io.Discard, nil)
}

func (d *Driver) runMetadata(ctx context.Context, op string, args []string, stdout io.Writer, allowedExitCodes map[int]bool) error {
	return d.retry(ctx, op, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, MetadataTimeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, d.binaryPath, args...)
		cmd.Stdout = stdout

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err == nil {
			return nil
		}
		if allowedExitCodes != nil && allowedExitCodes[exitCode(err)] {
			return &exitCodeError{code: exitCode(err), allowed: true, op: op}
		}
		return classifyExitErr(err, op, &stderr)
	})
}

// retry runs fn up to d.retryAttempts times with a fixed delay
// between attempts, per spec.md §4.8.
func (d *Driver) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := d.retryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if allowed, ok := err.(*exitCodeError); ok && allowed.allowed {
			return err
		}
		lastErr = err

		if !errs.IsRetryable(err) {
			break
		}
		if attempt == attempts {
			break
		}

		d.logger.Warn("transfer operation failed, retrying",
			zap.String("operation", op), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
	return lastErr
}

type exitCodeError struct {
	code    int
	allowed bool
	op      string
	stderr  string
}

func (e *exitCodeError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("%s: exit code %d: %s", e.op, e.code, e.stderr)
	}
	return fmt.Sprintf("%s: exit code %d", e.op, e.code)
}

func classifyExitErr(err error, op string, stderr *bytes.Buffer) error {
	msg := ""
	if stderr != nil {
		msg = strings.TrimSpace(stderr.String())
	}
	return &exitCodeError{code: exitCode(err), op: op, stderr: msg}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var ce *exitCodeError
	if errors.As(err, &ce) {
		return ce.code
	}
	return -1
}
