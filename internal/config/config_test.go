// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8484 {
		t.Errorf("Server.Port = %d, want 8484", cfg.Server.Port)
	}
	if cfg.Backup.MaxLocal != 5 {
		t.Errorf("Backup.MaxLocal = %d, want 5", cfg.Backup.MaxLocal)
	}
	if cfg.Backup.MaxRestorePoints != 1 {
		t.Errorf("Backup.MaxRestorePoints = %d, want 1", cfg.Backup.MaxRestorePoints)
	}
	if cfg.Cloud.Enabled {
		t.Error("cloud sync must default to disabled")
	}
	if cfg.Cloud.MaxStaleHours != 48 {
		t.Errorf("Cloud.MaxStaleHours = %d, want 48", cfg.Cloud.MaxStaleHours)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:   "defaults valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too high",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing data dir",
			mutate:  func(cfg *Config) { cfg.Store.DataDir = "" },
			wantErr: true,
		},
		{
			name:    "relative backup dir",
			mutate:  func(cfg *Config) { cfg.Backup.BackupDir = "backups" },
			wantErr: true,
		},
		{
			name:    "zero retention cap",
			mutate:  func(cfg *Config) { cfg.Backup.MaxLocal = 0 },
			wantErr: true,
		},
		{
			name: "backup disabled skips backup checks",
			mutate: func(cfg *Config) {
				cfg.Backup.Enabled = false
				cfg.Backup.MaxLocal = 0
			},
		},
		{
			name: "cloud enabled requires bucket",
			mutate: func(cfg *Config) {
				cfg.Cloud.Enabled = true
				cfg.Cloud.Bucket = ""
			},
			wantErr: true,
		},
		{
			name: "cloud enabled with bucket valid",
			mutate: func(cfg *Config) {
				cfg.Cloud.Enabled = true
				cfg.Cloud.Bucket = "subtrackd-backups"
			},
		},
		{
			name: "cloud zero timeout",
			mutate: func(cfg *Config) {
				cfg.Cloud.Enabled = true
				cfg.Cloud.Bucket = "b"
				cfg.Cloud.Timeout = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SUBTRACKD_SERVER_PORT", "server.port"},
		{"SUBTRACKD_BACKUP_MAX_LOCAL", "backup.max_local"},
		{"SUBTRACKD_CLOUD_ACCESS_KEY", "cloud.access_key"},
		{"SUBTRACKD_LOGGING_LEVEL", "logging.level"},
		{"SUBTRACKD_NOSECTION", ""},
	}

	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  port: 9001
backup:
  max_local: 7
`
	if err := os.WriteFile(configPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("SUBTRACKD_SERVER_PORT", "9002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Env beats file, file beats defaults.
	if cfg.Server.Port != 9002 {
		t.Errorf("Server.Port = %d, want 9002 from env", cfg.Server.Port)
	}
	if cfg.Backup.MaxLocal != 7 {
		t.Errorf("Backup.MaxLocal = %d, want 7 from file", cfg.Backup.MaxLocal)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want default", cfg.Server.Timeout)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SUBTRACKD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}
