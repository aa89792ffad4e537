package domain

import "time"

type DownloadStatus string

const (
	StatusActive   DownloadStatus = "active"
	StatusComplete DownloadStatus = "complete"
	StatusFailed   DownloadStatus = "failed"
)

// DownloadRecord is one row of download history. VideoID is unique: a
// re-download of the same video updates the existing record.
type DownloadRecord struct {
	ID          string
	VideoID     string
	Title       string
	Path        string
	Bytes       int64
	Status      DownloadStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}
