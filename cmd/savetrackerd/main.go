// savetrackerd - game save tracking and cloud-sync daemon.
// Entry point for the CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/savetrackerd/savetrackerd/internal/config"
	"github.com/savetrackerd/savetrackerd/internal/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.App.LogLevel,
		OutputPath: filepath.Join(cfg.Paths.LogDir, "savetrackerd.log"),
		MaxSizeMB:  cfg.Logging.Rotation.MaxSizeMB,
		MaxFiles:   cfg.Logging.Rotation.MaxFiles,
		Compress:   cfg.Logging.Rotation.Compress,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := parseCLIArgs(os.Args[1:])
	if opts == nil {
		printHelp()
		return
	}

	if err := runCLI(opts, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
