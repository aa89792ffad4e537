package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayanobu/nicofetch/internal/domain"
)

// DumpMetadata writes the collected video parameters next to the media
// file as indented JSON.
func DumpMetadata(video *domain.Video, mediaPath string) error {
	b, err := json.MarshalIndent(video, "", "  ")
	if err != nil {
		return err
	}
	path := sidecarPath(mediaPath, ".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("could not write metadata file: %w", err)
	}
	return nil
}

// DumpThumbnail downloads the video's best thumbnail next to the media file.
func (r *Resolver) DumpThumbnail(ctx context.Context, video *domain.Video, mediaPath string) error {
	if video.ThumbnailURL == "" {
		return domain.FormatNotAvailablef("video %s has no thumbnail", video.ID)
	}
	b, err := r.client.Get(ctx, video.ThumbnailURL)
	if err != nil {
		return fmt.Errorf("could not fetch thumbnail: %w", err)
	}
	path := sidecarPath(mediaPath, thumbnailExt(video.ThumbnailURL))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("could not write thumbnail file: %w", err)
	}
	return nil
}

// DumpComments requests the video's comment threads and writes the raw
// response next to the media file.
func (r *Resolver) DumpComments(ctx context.Context, video *domain.Video, mediaPath string) error {
	if video.ThreadKey == "" || len(video.ThreadParams) == 0 {
		return domain.FormatNotAvailablef("video %s has no comment thread parameters", video.ID)
	}

	payload, err := json.Marshal(map[string]any{
		"params":      video.ThreadParams,
		"threadKey":   video.ThreadKey,
		"additionals": map[string]any{},
	})
	if err != nil {
		return err
	}
	body, err := r.client.Post(ctx, commentsAPI, "application/json", string(payload), apiHeaders())
	if err != nil {
		return fmt.Errorf("could not fetch comments: %w", err)
	}

	path := sidecarPath(mediaPath, ".comments.json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("could not write comments file: %w", err)
	}
	return nil
}

// sidecarPath swaps the media extension for ext, keeping the base name.
func sidecarPath(mediaPath, ext string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	return base + ext
}

func thumbnailExt(rawURL string) string {
	// Thumbnail URLs may carry a query string after the extension.
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	if ext := filepath.Ext(rawURL); ext != "" {
		return ext
	}
	return ".jpg"
}
