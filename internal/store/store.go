// Package store persists download history so completed videos can be
// skipped on later runs and surfaced by the status API.
package store

import (
	"context"
	"fmt"

	"github.com/ayanobu/nicofetch/internal/config"
	"github.com/ayanobu/nicofetch/internal/domain"
)

// HistoryStore records download attempts and outcomes.
type HistoryStore interface {
	// Record upserts a download attempt keyed by video ID.
	Record(ctx context.Context, rec *domain.DownloadRecord) error

	// MarkComplete finalizes the record for a video with its byte total.
	MarkComplete(ctx context.Context, videoID string, bytes int64) error

	// MarkFailed finalizes the record for a video as failed.
	MarkFailed(ctx context.Context, videoID string) error

	// IsComplete reports whether a video already finished downloading.
	IsComplete(ctx context.Context, videoID string) (bool, error)

	// Recent returns the newest records, latest first.
	Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error)

	Close() error
}

// Open builds the configured backend.
func Open(cfg config.StoreConfig) (HistoryStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
