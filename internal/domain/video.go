package domain

import "encoding/json"

// Video collects the watch-page parameters a download needs. Populated by
// the resolver and threaded through the engine, muxer and metadata writers.
type Video struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader,omitempty"`
	UploaderID   int64    `json:"uploader_id,omitempty"`
	Description  string   `json:"description,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Published    string   `json:"published,omitempty"`
	Duration     float64  `json:"duration"` // seconds
	Extension    string   `json:"ext"`
	ViewCount    int      `json:"view_count"`
	CommentCount int      `json:"comment_count"`
	MylistCount  int      `json:"mylist_count"`
	LikeCount    int      `json:"like_count"`
	Tags         []string `json:"tags,omitempty"`

	// Comment thread access.
	ThreadKey    string          `json:"-"`
	ThreadParams json.RawMessage `json:"-"`

	// Chosen variant IDs, recorded by the quality selector.
	VideoQuality []string `json:"video_quality,omitempty"`
	AudioQuality []string `json:"audio_quality,omitempty"`

	Plan DeliveryPlan `json:"-"`
}
