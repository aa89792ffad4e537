package app

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the in-flight download.
type Snapshot struct {
	VideoID   string    `json:"video_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Bytes     int64     `json:"bytes"`
	Total     int64     `json:"total"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Idle      bool      `json:"idle"`
}

// Status is the mutex-guarded current-download state shared between the
// download loop and the status API.
type Status struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewStatus() *Status {
	return &Status{snap: Snapshot{Idle: true}}
}

// Begin marks a new download as active.
func (s *Status) Begin(videoID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		VideoID:   videoID,
		Title:     title,
		Stage:     "resolving",
		StartedAt: time.Now(),
	}
}

// Stage records the pipeline stage the download is in.
func (s *Status) Stage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stage = stage
}

// Progress updates the byte counters.
func (s *Status) Progress(bytes, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Bytes = bytes
	s.snap.Total = total
}

// End clears the active download.
func (s *Status) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{Idle: true}
}

func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
