// Package orchestrator implements the Upload Orchestrator (C9): the
// atomic upload protocol that stages checksums, packs a .sta archive,
// ships it to the configured cloud provider, and commits the staged
// checksums only once the transfer has landed (spec.md §4.9).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/errs"
	"github.com/savetrackerd/savetrackerd/internal/pathcontract"
	"github.com/savetrackerd/savetrackerd/internal/staarchive"
	"github.com/savetrackerd/savetrackerd/internal/store"
	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

// validationTTL is the age after which validate re-stamps a game's
// positive validation time in validatedAt.
const validationTTL = time.Minute

// SessionResult is the session-end summary an Orchestrator upload run
// is given: the final file list, play-time delta, and identifying
// context.
type SessionResult struct {
	GameID        string
	ProfileID     string
	InstallDir    string
	Prefix        string
	Files         []string
	PlaytimeDelta time.Duration
}

// UploadReport summarizes a completed (or partially completed) run.
type UploadReport struct {
	ArchivePath     string
	FilesPacked     int
	BytesUploaded   int64
	IconSynced      bool
	LegacySwept     bool
	MigrationQueued bool
}

// Orchestrator wires together the Checksum Store, the .sta codec, and
// the Transfer Driver behind the atomic upload protocol.
type Orchestrator struct {
	logger        *zap.Logger
	db            *store.DB
	checksumStore *checksumstore.Store
	xfer          *transfer.Driver
	workDir       string

	mu          sync.Mutex
	validatedAt map[string]time.Time // gameID -> last positive validation
}

// New constructs an Orchestrator. workDir is where temporary .sta
// archives are staged before upload.
func New(db *store.DB, checksumStore *checksumstore.Store, xfer *transfer.Driver, workDir string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		logger:        logger.With(zap.String("component", "orchestrator")),
		db:            db,
		checksumStore: checksumStore,
		xfer:          xfer,
		workDir:       workDir,
		validatedAt:   make(map[string]time.Time),
	}
}

// Upload runs the full atomic upload protocol for one session result.
// Post-steps (icon sync, legacy sweep, migration) run in parallel and
// their failures are logged, never surfaced as the overall error.
func (o *Orchestrator) Upload(ctx context.Context, res SessionResult, remoteDir string) (*UploadReport, error) {
	game, err := o.validate(res.GameID)
	if err != nil {
		return nil, err
	}

	staged, err := o.stageMetadata(res)
	if err != nil {
		return nil, errs.Wrap(err, "stage metadata for %s", res.GameID)
	}

	archivePath := filepath.Join(o.workDir, fmt.Sprintf("%s-%d.sta", game.ID, time.Now().UnixNano()))
	packed, err := staarchive.Pack(archivePath, staged.files, res.InstallDir, staged.metadata, res.Prefix)
	if err != nil {
		os.Remove(archivePath)
		return nil, errs.Wrap(err, "pack archive for %s", res.GameID)
	}
	defer os.Remove(archivePath)

	remoteArchive := remoteDir + "/" + staarchive.ArchiveName(res.ProfileID)
	if err := o.xfer.Copy(ctx, archivePath, remoteArchive, nil); err != nil {
		// Atomicity: copyto either fully replaces the remote object or
		// leaves the previous version intact. We never delete it here.
		return nil, errs.Wrap(err, "upload archive for %s", res.GameID)
	}

	if err := o.checksumStore.UpdateBatch(staged.updates, res.InstallDir, res.ProfileID, res.Prefix, res.PlaytimeDelta); err != nil {
		// Surfaced but not retried; the uploaded archive already carries
		// the staged manifest, so cloud state is consistent either way.
		o.logger.Error("commit checksums failed after successful upload",
			zap.String("game_id", res.GameID), zap.Error(err))
		return &UploadReport{ArchivePath: remoteArchive, FilesPacked: packed.FileCount, BytesUploaded: packed.TotalSize}, err
	}

	report := &UploadReport{ArchivePath: remoteArchive, FilesPacked: packed.FileCount, BytesUploaded: packed.TotalSize}
	o.runPostSteps(ctx, game, res, remoteDir, report)

	return report, nil
}

type stagedUpload struct {
	files    []string
	updates  []checksumstore.Update
	metadata staarchive.GameUploadData
}

// stageMetadata computes fresh hashes for every file in the session
// result and builds both the archive metadata and the checksum-store
// update batch from the same pass, so the two never drift apart.
func (o *Orchestrator) stageMetadata(res SessionResult) (*stagedUpload, error) {
	staged := &stagedUpload{
		metadata: staarchive.GameUploadData{
			PlayTime:       staarchive.Duration(res.PlaytimeDelta),
			LastUpdated:    time.Now().UTC(),
			DetectedPrefix: res.Prefix,
			Files:          make(map[string]staarchive.FileChecksumRecord),
		},
	}

	for _, abs := range res.Files {
		info, err := os.Stat(abs)
		if err != nil {
			continue // vanished between session end and upload; skip, don't fail the batch
		}
		hash, err := checksumstore.FileHash(abs)
		if err != nil {
			return nil, errs.Wrap(err, "hash %s", abs)
		}

		staged.files = append(staged.files, abs)
		staged.updates = append(staged.updates, checksumstore.Update{
			AbsPath: abs, Hash: hash, Size: info.Size(), LastModified: info.ModTime(),
		})

		portable := pathcontract.Contract(abs, res.InstallDir, res.Prefix)
		staged.metadata.Files[portable] = staarchive.FileChecksumRecord{
			Path: portable, Checksum: hash, LastUpload: time.Now().UTC(),
			FileSize: info.Size(), LastWriteTime: info.ModTime(),
		}
	}

	return staged, nil
}

// validate loads the game from the database and checks that it is
// auto-uploadable. Both happen on every call: a positive result is
// timestamped per game in validatedAt, but a recent timestamp does not
// skip the database read or change the outcome. The transfer agent's
// installation and configuration are not checked here.
func (o *Orchestrator) validate(gameID string) (*store.Game, error) {
	o.mu.Lock()
	last, cached := o.validatedAt[gameID]
	o.mu.Unlock()

	game, err := o.db.GetGame(gameID)
	if err != nil {
		return nil, errs.Wrap(err, "load game %s", gameID)
	}
	if !game.AutoUploadable {
		return nil, errs.Wrap(errs.ErrValidationFailed, "game %s is not auto-uploadable", gameID)
	}

	if cached && time.Since(last) < validationTTL {
		return game, nil
	}

	o.mu.Lock()
	o.validatedAt[gameID] = time.Now()
	o.mu.Unlock()
	return game, nil
}

func (o *Orchestrator) runPostSteps(ctx context.Context, game *store.Game, res SessionResult, remoteDir string, report *UploadReport) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		synced, err := o.syncIcon(ctx, game, res, remoteDir)
		if err != nil {
			o.logger.Warn("icon sync failed", zap.String("game_id", game.ID), zap.Error(err))
			return
		}
		report.IconSynced = synced
	}()

	go func() {
		defer wg.Done()
		queued, err := o.legacySweep(ctx, game, remoteDir)
		if err != nil {
			o.logger.Warn("legacy sweep failed", zap.String("game_id", game.ID), zap.Error(err))
			return
		}
		report.LegacySwept = true
		report.MigrationQueued = queued
	}()

	wg.Wait()
}
