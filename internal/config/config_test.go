package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Download.OutDir != "." {
		t.Errorf("OutDir = %q, want %q", cfg.Download.OutDir, ".")
	}
	if cfg.Download.Threads != 1 {
		t.Errorf("Threads = %d, want 1", cfg.Download.Threads)
	}
	if cfg.Download.SegmentWorkers != 5 {
		t.Errorf("SegmentWorkers = %d, want 5", cfg.Download.SegmentWorkers)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Session.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d, want 5", cfg.Session.RetryAttempts)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, "sqlite")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := writeConfig(t, `
download:
  out_dir: /tmp/videos
  threads: 4
  video_quality: h264_720p
session:
  user_agent: custom-agent/1.0
store:
  driver: postgres
  postgres_dsn: postgres://localhost/nicofetch
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Download.OutDir != "/tmp/videos" {
		t.Errorf("OutDir = %q", cfg.Download.OutDir)
	}
	if cfg.Download.Threads != 4 {
		t.Errorf("Threads = %d, want 4", cfg.Download.Threads)
	}
	if cfg.Download.VideoQuality != "h264_720p" {
		t.Errorf("VideoQuality = %q", cfg.Download.VideoQuality)
	}
	if cfg.Session.UserAgent != "custom-agent/1.0" {
		t.Errorf("UserAgent = %q", cfg.Session.UserAgent)
	}
	if cfg.Download.SegmentWorkers != 5 {
		t.Errorf("SegmentWorkers = %d, want default 5", cfg.Download.SegmentWorkers)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NICOFETCH_DOWNLOAD_THREADS", "8")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Download.Threads != 8 {
		t.Errorf("Threads = %d, want 8 from environment", cfg.Download.Threads)
	}
}

func TestLoadBrokenFile(t *testing.T) {
	path := writeConfig(t, "download: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero threads",
			mutate:  func(c *Config) { c.Download.Threads = 0 },
			wantErr: "download.threads",
		},
		{
			name:    "negative segment workers",
			mutate:  func(c *Config) { c.Download.SegmentWorkers = -1 },
			wantErr: "download.segment_workers",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: "store.driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.postgres_dsn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Download: DownloadConfig{Threads: 1, SegmentWorkers: 5},
				Store:    StoreConfig{Driver: "sqlite"},
			}
			tt.mutate(&cfg)
			err := cfg.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefaultsEmptyOutDir(t *testing.T) {
	cfg := Config{Download: DownloadConfig{Threads: 1, SegmentWorkers: 5}}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if cfg.Download.OutDir != "." {
		t.Errorf("OutDir = %q, want %q", cfg.Download.OutDir, ".")
	}
}
