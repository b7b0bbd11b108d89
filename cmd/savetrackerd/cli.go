// CLI dispatch for savetrackerd, mirroring the hand-rolled flag
// parser the desktop client uses for its own command-line mode.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/savetrackerd/savetrackerd/internal/checksumstore"
	"github.com/savetrackerd/savetrackerd/internal/config"
	"github.com/savetrackerd/savetrackerd/internal/orchestrator"
	"github.com/savetrackerd/savetrackerd/internal/pathcontract"
	"github.com/savetrackerd/savetrackerd/internal/profile"
	"github.com/savetrackerd/savetrackerd/internal/session"
	"github.com/savetrackerd/savetrackerd/internal/smartsync"
	"github.com/savetrackerd/savetrackerd/internal/staarchive"
	"github.com/savetrackerd/savetrackerd/internal/store"
	"github.com/savetrackerd/savetrackerd/internal/transfer"
)

// CLIOptions represents parsed command-line options.
type CLIOptions struct {
	ListGames     bool
	CaptureGameID string
	UploadGameID  string
	CompareGameID string
	ThresholdMins int // -1 = not set, use config default

	SwitchGameID    string
	SwitchProfileID string

	Help bool
}

// parseCLIArgs parses command-line arguments. Returns nil if no
// recognized arguments are present.
func parseCLIArgs(args []string) *CLIOptions {
	opts := &CLIOptions{ThresholdMins: -1}
	hasCliArg := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			opts.Help = true
			hasCliArg = true

		case "-l", "--list-games":
			opts.ListGames = true
			hasCliArg = true

		case "-c", "--capture":
			hasCliArg = true
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --capture requires a game ID\n")
				os.Exit(1)
			}
			i++
			opts.CaptureGameID = args[i]

		case "-u", "--upload":
			hasCliArg = true
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --upload requires a game ID\n")
				os.Exit(1)
			}
			i++
			opts.UploadGameID = args[i]

		case "-p", "--compare":
			hasCliArg = true
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --compare requires a game ID\n")
				os.Exit(1)
			}
			i++
			opts.CompareGameID = args[i]

		case "--threshold":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --threshold requires a number of minutes\n")
				os.Exit(1)
			}
			i++
			mins, err := strconv.Atoi(args[i])
			if err != nil || mins < 0 {
				fmt.Fprintf(os.Stderr, "Error: invalid threshold value '%s'\n", args[i])
				os.Exit(1)
			}
			opts.ThresholdMins = mins

		case "-s", "--switch-profile":
			hasCliArg = true
			if i+2 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --switch-profile requires a game ID and a profile ID\n")
				os.Exit(1)
			}
			opts.SwitchGameID = args[i+1]
			opts.SwitchProfileID = args[i+2]
			i += 2

		default:
			if strings.HasPrefix(arg, "-") {
				fmt.Fprintf(os.Stderr, "Error: unknown option '%s'\n", arg)
				fmt.Fprintf(os.Stderr, "Run 'savetrackerd --help' for usage.\n")
				os.Exit(1)
			}
		}
	}

	if !hasCliArg {
		return nil
	}
	return opts
}

// printHelp displays usage information.
func printHelp() {
	fmt.Println(`savetrackerd

Usage:
  savetrackerd [options]

Options:
  -l, --list-games              List all registered games
  -c, --capture <gameID>        Start a capture session and block until the game exits
  -u, --upload <gameID>         Upload the most recent tracked files for a game
  -p, --compare <gameID>        Compare local vs. cloud progress for a game
      --threshold <minutes>     Override the Smart Sync similarity threshold
  -s, --switch-profile <gameID> <profileID>
                                 Switch a game's active save profile
  -h, --help                    Show this help message

Examples:
  savetrackerd --list-games
  savetrackerd --capture example-game
  savetrackerd --compare example-game --threshold 10
  savetrackerd --switch-profile example-game hardcore`)
}

// runCLI opens the registry and dispatches to the requested operation.
func runCLI(opts *CLIOptions, cfg *config.Config, logger *zap.Logger) error {
	if opts.Help {
		printHelp()
		return nil
	}

	db, err := store.Open(store.Config{Path: cfg.Paths.DBPath, EncryptionKey: encryptionKey(cfg)})
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer db.Close()

	if opts.ListGames {
		return runListGames(db)
	}

	checksums := checksumstore.New(logger)
	xfer := transfer.New(cfg.Transfer.AgentPath, cfg.Transfer.ConfigPath, logger)

	switch {
	case opts.CaptureGameID != "":
		return runCapture(db, checksums, xfer, cfg, opts.CaptureGameID, logger)
	case opts.UploadGameID != "":
		return runUpload(db, checksums, xfer, cfg, opts.UploadGameID, logger)
	case opts.CompareGameID != "":
		return runCompare(db, checksums, xfer, cfg, opts.CompareGameID, opts.ThresholdMins, logger)
	case opts.SwitchGameID != "":
		return runSwitchProfile(db, checksums, opts.SwitchGameID, opts.SwitchProfileID, logger)
	}

	printHelp()
	return nil
}

func encryptionKey(cfg *config.Config) string {
	if key := os.Getenv("SAVETRACKER_DB_KEY"); key != "" {
		return key
	}
	return "savetrackerd-default-key-change-me"
}

func remoteGameDir(cfg *config.Config, gameID string) string {
	base := strings.TrimSuffix(cfg.Transfer.RemoteBase, "/")
	return cfg.Transfer.DefaultRemote + base + "/" + gameID
}

func runListGames(db *store.DB) error {
	games, err := db.ListGames()
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}
	if len(games) == 0 {
		fmt.Println("No games registered.")
		return nil
	}

	fmt.Printf("%-20s %-35s %-10s %s\n", "ID", "Install Dir", "Profile", "Auto-upload")
	fmt.Println(strings.Repeat("-", 90))
	for _, g := range games {
		auto := "no"
		if g.AutoUploadable {
			auto = "yes"
		}
		fmt.Printf("%-20s %-35s %-10s %s\n", g.ID, truncatePath(g.InstallDir, 35), g.ActiveProfileID, auto)
	}
	return nil
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// runCapture runs the §5 session lifecycle for one game: find and
// attach to its running process, track saves until the process exits,
// then hand the result to the Upload Orchestrator.
func runCapture(db *store.DB, checksums *checksumstore.Store, xfer *transfer.Driver, cfg *config.Config, gameID string, logger *zap.Logger) error {
	game, err := db.GetGame(gameID)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}

	mgr := session.NewManager()
	sess := session.New(session.Config{
		GameID:            game.ID,
		ProfileID:         game.ActiveProfileID,
		InstallDir:        game.InstallDir,
		Executables:       game.ExecutableNames,
		MaxFiles:          cfg.Tracking.MaxFiles,
		MaxTotalSizeBytes: cfg.Tracking.MaxTotalSizeBytes,
		PeriodicScan:      time.Duration(cfg.Tracking.PeriodicScanSeconds) * time.Second,
	}, checksums, logger)

	if err := mgr.TryAcquire(game.ID, sess); err != nil {
		return err
	}
	defer mgr.Release(game.ID)

	ctx := context.Background()
	target := game.ExecutableNames[0]

	fmt.Printf("Looking for a running %s process...\n", target)
	if err := sess.Start(ctx, target); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	fmt.Printf("Capturing \"%s\" (profile: %s)\n", game.Name, game.ActiveProfileID)

	if err := sess.WaitForExit(ctx); err != nil {
		return fmt.Errorf("wait for process exit: %w", err)
	}

	res, err := sess.Stop(ctx)
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}

	fmt.Printf("Capture complete: %d files tracked, %s playtime\n", len(res.Files), res.PlaytimeDelta.Round(time.Second))
	if res.CapBreached {
		fmt.Println("Warning: file/size cap was reached; upload list may be incomplete.")
	}

	if res.Prefix != "" && res.Prefix != game.DetectedPrefix {
		if err := db.SetDetectedPrefix(game.ID, res.Prefix); err != nil {
			logger.Warn("failed to persist detected prefix", zap.String("game_id", game.ID), zap.Error(err))
		} else {
			game.DetectedPrefix = res.Prefix
		}
	}

	sessionID, err := db.BeginSession(game.ID, game.ActiveProfileID, res.StartedAt)
	if err == nil {
		db.CompleteSession(sessionID, store.SessionRecord{
			ID: sessionID, GameID: game.ID, ProfileID: game.ActiveProfileID,
			StartedAt: res.StartedAt, ProcessExitedAt: &res.ProcessExited,
			PlaytimeSeconds: int64(res.PlaytimeDelta.Seconds()), FilesTracked: len(res.Files),
			CapBreached: res.CapBreached,
		})
	}

	if !game.AutoUploadable {
		return nil
	}

	orc := orchestrator.New(db, checksums, xfer, cfg.Paths.CacheDir, logger)
	report, err := orc.Upload(ctx, orchestrator.SessionResult{
		GameID: game.ID, ProfileID: game.ActiveProfileID, InstallDir: game.InstallDir,
		Prefix: res.Prefix, Files: res.Files, PlaytimeDelta: res.PlaytimeDelta,
	}, remoteGameDir(cfg, game.ID))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("Uploaded %d files to %s\n", report.FilesPacked, report.ArchivePath)
	return nil
}

// runUpload re-packs and uploads a game's currently tracked files
// without running a new capture session (e.g. after a manual profile
// edit).
func runUpload(db *store.DB, checksums *checksumstore.Store, xfer *transfer.Driver, cfg *config.Config, gameID string, logger *zap.Logger) error {
	game, err := db.GetGame(gameID)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}

	manifest, err := checksums.Load(game.InstallDir, game.ActiveProfileID)
	if err != nil {
		return fmt.Errorf("load checksum store: %w", err)
	}
	if len(manifest.Files) == 0 {
		fmt.Println("No tracked files to upload.")
		return nil
	}

	var files []string
	for portable := range manifest.Files {
		files = append(files, pathcontract.Expand(portable, game.InstallDir, game.DetectedPrefix))
	}

	orc := orchestrator.New(db, checksums, xfer, cfg.Paths.CacheDir, logger)
	report, err := orc.Upload(context.Background(), orchestrator.SessionResult{
		GameID: game.ID, ProfileID: game.ActiveProfileID, InstallDir: game.InstallDir,
		Prefix: game.DetectedPrefix, Files: files,
	}, remoteGameDir(cfg, game.ID))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("Uploaded %d files to %s\n", report.FilesPacked, report.ArchivePath)
	return nil
}

// runCompare runs the Smart Sync comparison (§4.10) and prints a
// human-readable verdict.
func runCompare(db *store.DB, checksums *checksumstore.Store, xfer *transfer.Driver, cfg *config.Config, gameID string, thresholdMins int, logger *zap.Logger) error {
	game, err := db.GetGame(gameID)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}

	threshold := time.Duration(cfg.Transfer.SyncThresholdMinutes) * time.Minute
	if thresholdMins >= 0 {
		threshold = time.Duration(thresholdMins) * time.Minute
	}

	arbiter := smartsync.New(checksums, xfer, logger)
	archiveName := staarchive.ArchiveName(game.ActiveProfileID)
	remoteArchive := remoteGameDir(cfg, game.ID) + "/" + archiveName

	cmp, err := arbiter.Compare(context.Background(), game.InstallDir, game.ActiveProfileID, game.DetectedPrefix, remoteArchive, threshold)
	if err != nil {
		return fmt.Errorf("compare progress: %w", err)
	}

	fmt.Printf("%-12s %v\n", "Local:", cmp.LocalPlayTime.Round(time.Second))
	fmt.Printf("%-12s %v\n", "Cloud:", cmp.CloudPlayTime.Round(time.Second))
	fmt.Printf("%-12s %v\n", "Difference:", cmp.Difference.Round(time.Second))
	fmt.Printf("%-12s %s\n", "Verdict:", cmp.Verdict)
	return nil
}

// runSwitchProfile activates targetProfileID for gameID, backing up
// the currently live files first.
func runSwitchProfile(db *store.DB, checksums *checksumstore.Store, gameID, targetProfileID string, logger *zap.Logger) error {
	game, err := db.GetGame(gameID)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}
	if _, err := db.GetProfile(gameID, targetProfileID); err != nil {
		return fmt.Errorf("load target profile %s: %w", targetProfileID, err)
	}

	mgr := profile.New(game.InstallDir, checksums, logger)
	if err := mgr.SwitchProfile(game.ActiveProfileID, targetProfileID, false); err != nil {
		return fmt.Errorf("switch profile: %w", err)
	}

	if err := db.MarkProfileActive(gameID, targetProfileID); err != nil {
		return fmt.Errorf("persist active profile: %w", err)
	}

	fmt.Printf("Switched %s to profile \"%s\"\n", game.Name, targetProfileID)
	return nil
}
