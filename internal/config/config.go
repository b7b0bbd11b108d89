// Package config loads SaveTracker's configuration.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Security SecurityConfig `mapstructure:"security"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type PathsConfig struct {
	ConfigDir string `mapstructure:"config_dir"`
	LogDir    string `mapstructure:"log_dir"`
	CacheDir  string `mapstructure:"cache_dir"`
	DBPath    string `mapstructure:"db_path"`
}

type LoggingConfig struct {
	Rotation LogRotationConfig `mapstructure:"rotation"`
	Console  bool              `mapstructure:"console"`
}

type LogRotationConfig struct {
	MaxSizeMB int  `mapstructure:"max_size_mb"`
	MaxFiles  int  `mapstructure:"max_files"`
	Compress  bool `mapstructure:"compress"`
}

// TrackingConfig governs the capture session caps and cadence described
// in spec.md §3 (invariants) and §4.2 (periodic scan).
type TrackingConfig struct {
	MaxFiles            int   `mapstructure:"max_files"`             // MAX_FILES, default 500
	MaxTotalSizeBytes   int64 `mapstructure:"max_total_size_bytes"`  // MAX_TOTAL_SIZE, default 100 MiB
	PeriodicScanSeconds int   `mapstructure:"periodic_scan_seconds"` // default 30
	GracePeriodSeconds  int   `mapstructure:"grace_period_seconds"`  // default 5
	ReadTrackingEnabled bool  `mapstructure:"read_tracking_enabled"`
}

// TransferConfig governs the Transfer Driver (C8).
type TransferConfig struct {
	AgentPath              string `mapstructure:"agent_path"`
	ConfigPath             string `mapstructure:"config_path"`
	DefaultRemote          string `mapstructure:"default_remote"`
	RemoteBase             string `mapstructure:"remote_base"`
	RetryAttempts          int    `mapstructure:"retry_attempts"`
	RetryDelaySeconds      int    `mapstructure:"retry_delay_seconds"`
	TransferTimeoutMinutes int    `mapstructure:"transfer_timeout_minutes"`
	MetadataTimeoutSeconds int    `mapstructure:"metadata_timeout_seconds"`
	SyncThresholdMinutes   int    `mapstructure:"sync_threshold_minutes"`
}

type ProfilesConfig struct {
	BackupSuffix       string `mapstructure:"backup_suffix"`
	DefaultProfileName string `mapstructure:"default_profile_name"`
}

type SecurityConfig struct {
	QuarantineDirName string `mapstructure:"quarantine_dir_name"`
}

// Load reads configuration from configPath, or from the standard
// search locations if configPath is empty, applying defaults for
// anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(defaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("SAVETRACKER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Paths.ConfigDir = expandPath(cfg.Paths.ConfigDir)
	cfg.Paths.LogDir = expandPath(cfg.Paths.LogDir)
	cfg.Paths.CacheDir = expandPath(cfg.Paths.CacheDir)
	cfg.Paths.DBPath = expandPath(cfg.Paths.DBPath)
	cfg.Transfer.ConfigPath = expandPath(cfg.Transfer.ConfigPath)

	return &cfg, nil
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "SaveTracker")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "SaveTracker")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "savetracker")
	}
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return os.Expand(path, func(key string) string {
		if key == "HOME" {
			return home
		}
		return os.Getenv(key)
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "SaveTracker")
	v.SetDefault("app.version", "0.1.0-dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("paths.config_dir", defaultConfigDir())
	v.SetDefault("paths.log_dir", filepath.Join(defaultConfigDir(), "logs"))
	v.SetDefault("paths.cache_dir", filepath.Join(defaultConfigDir(), "cache"))
	v.SetDefault("paths.db_path", filepath.Join(defaultConfigDir(), "savetracker.db"))

	v.SetDefault("logging.rotation.max_size_mb", 10)
	v.SetDefault("logging.rotation.max_files", 5)
	v.SetDefault("logging.rotation.compress", true)
	v.SetDefault("logging.console", true)

	v.SetDefault("tracking.max_files", 500)
	v.SetDefault("tracking.max_total_size_bytes", int64(100*1024*1024))
	v.SetDefault("tracking.periodic_scan_seconds", 30)
	v.SetDefault("tracking.grace_period_seconds", 5)
	v.SetDefault("tracking.read_tracking_enabled", false)

	v.SetDefault("transfer.remote_base", "savetracker")
	v.SetDefault("transfer.retry_attempts", 3)
	v.SetDefault("transfer.retry_delay_seconds", 2)
	v.SetDefault("transfer.transfer_timeout_minutes", 10)
	v.SetDefault("transfer.metadata_timeout_seconds", 20)
	v.SetDefault("transfer.sync_threshold_minutes", 5)

	v.SetDefault("profiles.backup_suffix", "ST_PROFILE")
	v.SetDefault("profiles.default_profile_name", "Default")

	v.SetDefault("security.quarantine_dir_name", ".ST_QUARANTINE")
}
