package controllers

import "time"

type historyEntry struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"video_id"`
	Title       string     `json:"title"`
	Path        string     `json:"path"`
	Bytes       int64      `json:"bytes"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
