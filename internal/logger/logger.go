// Package logger builds the process-wide structured logger.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level      string // debug, info, warning, error, critical
	OutputPath string // log file path
	MaxSizeMB  int    // rotate after this size
	MaxFiles   int    // backups to keep
	Compress   bool   // gzip rotated backups
	Console    bool   // also write to stdout
}

// New builds a zap logger that writes JSON to a rotated file (via
// lumberjack) and, optionally, human-readable output to stdout.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	level := parseLevel(cfg.Level)

	fileEncoder := zapcore.NewJSONEncoder(encoderConfig())
	cores := []zapcore.Core{}

	if cfg.OutputPath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    maxOrDefault(cfg.MaxSizeMB, 10),
			MaxBackups: maxOrDefault(cfg.MaxFiles, 5),
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	if cfg.Console || cfg.OutputPath == "" {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warning", "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "critical", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
