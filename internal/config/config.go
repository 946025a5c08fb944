// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads subtrackd configuration from layered sources with
// clear precedence: environment variables > YAML config file > built-in
// defaults. Koanf v2 provides the layering; the resulting Config struct is
// the single source of configuration for the whole process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration for the subtrackd server.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Backup  BackupConfig  `koanf:"backup"`
	Cloud   CloudConfig   `koanf:"cloud"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// StoreConfig holds the Badger-backed domain store settings.
type StoreConfig struct {
	// DataDir is the root directory for the Badger databases.
	DataDir string `koanf:"data_dir"`
}

// BackupConfig holds local backup storage and retention settings.
type BackupConfig struct {
	Enabled bool `koanf:"enabled"`

	// BackupDir is where snapshot files and the record index live.
	// Exclusively owned by the local backup store.
	BackupDir string `koanf:"backup_dir"`

	// ExportDir is where user-initiated export files are written.
	ExportDir string `koanf:"export_dir"`

	// MaxLocal caps ordinary local backups; the oldest beyond the cap
	// are pruned after each successful write.
	MaxLocal int `koanf:"max_local"`

	// MaxRestorePoints caps automatic pre-restore safety snapshots.
	MaxRestorePoints int `koanf:"max_restore_points"`
}

// CloudConfig holds remote sync (S3-compatible object store) settings.
type CloudConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`

	// Prefix namespaces this device's snapshots within the bucket.
	Prefix string `koanf:"prefix"`

	// Timeout bounds each remote call; the sync client itself does not
	// retry.
	Timeout time.Duration `koanf:"timeout"`

	// MaxStaleHours is the age after which the last successful sync is
	// reported as stale.
	MaxStaleHours int `koanf:"max_stale_hours"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			DataDir: "/data/subtrackd",
		},
		Backup: BackupConfig{
			Enabled:          true,
			BackupDir:        "/data/subtrackd/backups",
			ExportDir:        "/data/subtrackd/exports",
			MaxLocal:         5,
			MaxRestorePoints: 1,
		},
		Cloud: CloudConfig{
			Enabled:       false,
			Region:        "us-east-1",
			Prefix:        "snapshots",
			Timeout:       60 * time.Second,
			MaxStaleHours: 48,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if c.Backup.Enabled {
		if c.Backup.BackupDir == "" {
			return fmt.Errorf("backup.backup_dir is required when backups are enabled")
		}
		if !filepath.IsAbs(c.Backup.BackupDir) {
			return fmt.Errorf("backup.backup_dir must be an absolute path, got %s", c.Backup.BackupDir)
		}
		if c.Backup.MaxLocal < 1 {
			return fmt.Errorf("backup.max_local must be at least 1, got %d", c.Backup.MaxLocal)
		}
		if c.Backup.MaxRestorePoints < 1 {
			return fmt.Errorf("backup.max_restore_points must be at least 1, got %d", c.Backup.MaxRestorePoints)
		}
	}
	if c.Cloud.Enabled {
		if c.Cloud.Bucket == "" {
			return fmt.Errorf("cloud.bucket is required when cloud sync is enabled")
		}
		if c.Cloud.Timeout <= 0 {
			return fmt.Errorf("cloud.timeout must be positive, got %s", c.Cloud.Timeout)
		}
		if c.Cloud.MaxStaleHours < 1 {
			return fmt.Errorf("cloud.max_stale_hours must be at least 1, got %d", c.Cloud.MaxStaleHours)
		}
	}
	return nil
}

// EnsureDirs creates the data, backup, and export directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.Store.DataDir}
	if c.Backup.Enabled {
		dirs = append(dirs, c.Backup.BackupDir, c.Backup.ExportDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// findConfigFile searches for a config file, checking the env override
// first and then the default paths. Returns empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to koanf config paths.
//
//	SUBTRACKD_SERVER_PORT      -> server.port
//	SUBTRACKD_BACKUP_MAX_LOCAL -> backup.max_local
//	SUBTRACKD_CLOUD_ACCESS_KEY -> cloud.access_key
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}
