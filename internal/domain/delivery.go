package domain

// Source describes one encoding variant offered for a single track. The
// upstream API returns these sorted best-first; quality selection relies on
// that ordering (and warns when it does not hold).
type Source struct {
	ID           string `json:"id"`
	IsAvailable  bool   `json:"isAvailable"`
	BitRate      int    `json:"bitRate"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Label        string `json:"label,omitempty"`
	SamplingRate int    `json:"samplingRate,omitempty"`
}

// LegacySession carries everything needed to negotiate a session with the
// legacy XML delivery service and keep it alive.
type LegacySession struct {
	SessionURL        string
	RecipeID          string
	ContentID         string
	Protocol          string
	FileExtension     string
	Priority          string
	HeartbeatLifetime int // milliseconds
	Token             string
	Signature         string
	AuthType          string
	ServiceUserID     string
	PlayerID          string
	VideoSources      []string
	AudioSources      []string
}

// SegmentedManifest points at the per-track media playlists of the newer
// manifest-based delivery. Either URI may be empty when a track was excluded.
type SegmentedManifest struct {
	VideoURI string
	AudioURI string
}

// DeliveryPlan is the tagged variant selected once after inspecting the
// content-resolution response. Exactly one arm is non-nil.
type DeliveryPlan struct {
	Legacy    *LegacySession
	Segmented *SegmentedManifest
}
