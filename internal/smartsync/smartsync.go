// Package smartsync implements the Smart Sync Arbiter (C10):
// comparing local and cloud play-time to decide whether a local
// capture is ahead of, behind, or roughly in sync with the cloud
// archive, using the .sta header peek to avoid a full download
// (spec.md §4.10).
package smartsync

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/staarchive"
	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

// Verdict classifies the comparison outcome.
type Verdict string

const (
	CloudAhead    Verdict = "CloudAhead"
	Similar       Verdict = "Similar"
	LocalAhead    Verdict = "LocalAhead"
	CloudNotFound Verdict = "CloudNotFound"
)

// Comparison is the arbiter's full result.
type Comparison struct {
	Verdict       Verdict
	LocalPlayTime time.Duration
	CloudPlayTime time.Duration
	Difference    time.Duration
}

// Arbiter compares local and cloud progress for a game.
type Arbiter struct {
	logger   *zap.Logger
	checksum *checksumstore.Store
	xfer     *transfer.Driver
}

// New constructs an Arbiter.
func New(checksum *checksumstore.Store, xfer *transfer.Driver, logger *zap.Logger) *Arbiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{
		logger:   logger.With(zap.String("component", "smartsync")),
		checksum: checksum,
		xfer:     xfer,
	}
}

// Compare runs the §4.10 classification for one (gameDir, profileID)
// against remoteArchivePath, a threshold (typical 5 minutes), and an
// optional detected Wine/Proton prefix.
func (a *Arbiter) Compare(ctx context.Context, gameDir, profileID, prefix, remoteArchivePath string, threshold time.Duration) (*Comparison, error) {
	localPlayTime, err := a.localPlayTime(gameDir, profileID, prefix)
	if err != nil {
		return nil, err
	}

	cloudPlayTime, found, err := a.cloudPlayTime(ctx, remoteArchivePath)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Comparison{Verdict: CloudNotFound, LocalPlayTime: localPlayTime}, nil
	}

	return &Comparison{
		Verdict:       classify(localPlayTime, cloudPlayTime, threshold),
		LocalPlayTime: localPlayTime,
		CloudPlayTime: cloudPlayTime,
		Difference:    absDuration(cloudPlayTime - localPlayTime),
	}, nil
}

// localPlayTime implements rule 1: a checksum file with zero existing
// files on disk (dual-boot / wiped-local) never claims progress.
func (a *Arbiter) localPlayTime(gameDir, profileID, prefix string) (time.Duration, error) {
	manifest, err := a.checksum.Load(gameDir, profileID)
	if err != nil {
		return 0, err
	}
	if checksumstore.CountExistingFiles(manifest, gameDir, prefix) == 0 {
		return 0, nil
	}
	return time.Duration(manifest.PlayTime), nil
}

// cloudPlayTime implements rule 2: peek the remote archive header via
// a bounded read, falling through to a legacy JSON check, and
// reporting absence rather than erroring when nothing is found.
func (a *Arbiter) cloudPlayTime(ctx context.Context, remoteArchivePath string) (time.Duration, bool, error) {
	peeked, err := a.xfer.Cat(ctx, remoteArchivePath, staarchive.PeekReadByteSize)
	if err == nil {
		if metadata, perr := staarchive.PeekMetadataBytes(peeked); perr == nil && metadata != nil {
			return time.Duration(metadata.PlayTime), true, nil
		}
	}

	legacyPath := legacyManifestPath(remoteArchivePath)
	exists, err := a.xfer.Exists(ctx, legacyPath)
	if err != nil {
		a.logger.Debug("legacy manifest existence check failed", zap.Error(err))
		return 0, false, nil
	}
	if !exists {
		return 0, false, nil
	}

	// Pre-migration legacy layouts are a plain JSON manifest, not a
	// .sta archive, so there is no STARCH header to peek past.
	legacyBytes, err := a.xfer.Cat(ctx, legacyPath, staarchive.PeekReadByteSize)
	if err != nil {
		return 0, false, nil
	}
	var metadata staarchive.GameUploadData
	if err := json.Unmarshal(legacyBytes, &metadata); err != nil {
		return 0, false, nil
	}
	return time.Duration(metadata.PlayTime), true, nil
}

func legacyManifestPath(archivePath string) string {
	return archivePath + ".legacy.json"
}

func classify(local, cloud, threshold time.Duration) Verdict {
	if local == 0 && cloud > 0 {
		return CloudAhead
	}
	diff := absDuration(cloud - local)
	if diff < threshold {
		return Similar
	}
	if cloud > local {
		return CloudAhead
	}
	return LocalAhead
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
