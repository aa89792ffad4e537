package store

import (
	"database/sql"
	"time"

	"github.com/ayanobu/nicofetch/internal/domain"
)

// downloadDBO maps a history row onto scannable fields.
type downloadDBO struct {
	ID          string
	VideoID     string
	Title       string
	Path        string
	Bytes       int64
	Status      string
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

func (d *downloadDBO) FromDomain(rec *domain.DownloadRecord) {
	d.ID = rec.ID
	d.VideoID = rec.VideoID
	d.Title = rec.Title
	d.Path = rec.Path
	d.Bytes = rec.Bytes
	d.Status = string(rec.Status)
	d.CreatedAt = rec.CreatedAt
	if rec.CompletedAt != nil {
		d.CompletedAt = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	} else {
		d.CompletedAt = sql.NullTime{}
	}
}

func (d *downloadDBO) ToDomain() *domain.DownloadRecord {
	rec := &domain.DownloadRecord{
		ID:        d.ID,
		VideoID:   d.VideoID,
		Title:     d.Title,
		Path:      d.Path,
		Bytes:     d.Bytes,
		Status:    domain.DownloadStatus(d.Status),
		CreatedAt: d.CreatedAt,
	}
	if d.CompletedAt.Valid {
		t := d.CompletedAt.Time
		rec.CompletedAt = &t
	}
	return rec
}
