package smartsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

// MirrorCache keeps a local copy of a game's manifest and icon under a
// cache directory, keyed by the remote's reported modification time
// (from lsjson), so an unchanged remote never triggers a re-download.
type MirrorCache struct {
	logger  *zap.Logger
	cacheDir string
	xfer    *transfer.Driver
}

// NewMirrorCache constructs a MirrorCache rooted at cacheDir.
func NewMirrorCache(cacheDir string, xfer *transfer.Driver, logger *zap.Logger) *MirrorCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorCache{
		logger:   logger.With(zap.String("component", "smartsync.cache")),
		cacheDir: cacheDir,
		xfer:     xfer,
	}
}

// stampPath is where the cached remote mtime is recorded, alongside
// the mirrored object itself.
func (c *MirrorCache) stampPath(gameID, object string) string {
	return filepath.Join(c.cacheDir, gameID, object+".mtime")
}

func (c *MirrorCache) mirrorPath(gameID, object string) string {
	return filepath.Join(c.cacheDir, gameID, object)
}

// Sync ensures the local mirror of remoteObject (e.g. "icon.png" or
// "default.sta") is current, downloading only if the remote's
// reported mtime differs from the cached stamp. Returns the local
// mirror path.
func (c *MirrorCache) Sync(ctx context.Context, gameID, remoteDir, object string) (string, error) {
	entries, err := c.xfer.LsJSON(ctx, remoteDir, false)
	if err != nil {
		return "", fmt.Errorf("list remote %s: %w", remoteDir, err)
	}

	var remoteModTime time.Time
	found := false
	for _, e := range entries {
		if e.Path == object {
			remoteModTime = e.ModTime
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("remote object %s not found under %s", object, remoteDir)
	}

	mirror := c.mirrorPath(gameID, object)
	stamp := c.stampPath(gameID, object)

	if cached, err := os.ReadFile(stamp); err == nil {
		if cachedTime, err := time.Parse(time.RFC3339, string(cached)); err == nil && cachedTime.Equal(remoteModTime) {
			if _, err := os.Stat(mirror); err == nil {
				return mirror, nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(mirror), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	remotePath := remoteDir + "/" + object
	if err := c.xfer.Copy(ctx, remotePath, mirror, nil); err != nil {
		return "", fmt.Errorf("mirror %s: %w", remotePath, err)
	}
	if err := os.WriteFile(stamp, []byte(remoteModTime.Format(time.RFC3339)), 0o644); err != nil {
		c.logger.Warn("failed to persist cache stamp", zap.Error(err))
	}

	return mirror, nil
}
