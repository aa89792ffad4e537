package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayanobu/nicofetch/internal/config"
)

// New builds the application logger: a text handler writing to a rotated
// log file, optionally teeing to stdout for interactive runs.
func New(cfg config.LogConfig) *slog.Logger {
	rotated := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}

	var out io.Writer = rotated
	if cfg.IncludeStdout {
		out = io.MultiWriter(rotated, os.Stdout)
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
