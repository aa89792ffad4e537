package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
}

type DownloadConfig struct {
	OutDir          string `mapstructure:"out_dir" yaml:"out_dir"`
	Threads         int    `mapstructure:"threads" yaml:"threads"`
	SegmentWorkers  int    `mapstructure:"segment_workers" yaml:"segment_workers"`
	BreakOnExisting bool   `mapstructure:"break_on_existing" yaml:"break_on_existing"`
	SkipMedia       bool   `mapstructure:"skip_media" yaml:"skip_media"`
	NoVideo         bool   `mapstructure:"no_video" yaml:"no_video"`
	NoAudio         bool   `mapstructure:"no_audio" yaml:"no_audio"`
	VideoQuality    string `mapstructure:"video_quality" yaml:"video_quality"`
	AudioQuality    string `mapstructure:"audio_quality" yaml:"audio_quality"`
	DumpMetadata    bool   `mapstructure:"dump_metadata" yaml:"dump_metadata"`
	DumpThumbnail   bool   `mapstructure:"dump_thumbnail" yaml:"dump_thumbnail"`
	DumpComments    bool   `mapstructure:"dump_comments" yaml:"dump_comments"`
	AddMetadata     bool   `mapstructure:"add_metadata" yaml:"add_metadata"`
}

type SessionConfig struct {
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	SessionCookie string `mapstructure:"session_cookie" yaml:"session_cookie"`
	NoLogin       bool   `mapstructure:"no_login" yaml:"no_login"`
	UserAgent     string `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy         string `mapstructure:"proxy" yaml:"proxy"`
	RetryAttempts int    `mapstructure:"retry_attempts" yaml:"retry_attempts"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	MaxSizeMB     int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups" yaml:"max_backups"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

type APIConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Load reads the YAML config at path, applying defaults and NICOFETCH_*
// environment overrides. A missing file is not an error when path is the
// default name; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("download.out_dir", ".")
	v.SetDefault("download.threads", 1)
	v.SetDefault("download.segment_workers", 5)
	v.SetDefault("log.path", "nicofetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("session.retry_attempts", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "nicofetch.db")

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// Defaults are enough to run; only a present-but-broken file is fatal.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("NICOFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.Threads <= 0 {
		return errors.New("download.threads must be a positive integer")
	}
	if c.Download.SegmentWorkers <= 0 {
		return errors.New("download.segment_workers must be a positive integer")
	}
	if c.Download.OutDir == "" {
		c.Download.OutDir = "."
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return errors.New("store.postgres_dsn is required when store.driver is postgres")
	}
	return nil
}
