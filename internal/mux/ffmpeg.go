// Package mux finalizes downloads: merging separately-fetched elementary
// streams into one container via an external ffmpeg process, and embedding
// descriptive tags into the finished file.
package mux

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ayanobu/nicofetch/internal/domain"
)

var outTimeRe = regexp.MustCompile(`out_time=\s*([0-9]{2}):([0-9]{2}):([0-9]{2}(?:\.[0-9]+)?)`)

type FFmpeg struct {
	BinaryPath string
	log        *slog.Logger
}

func NewFFmpeg(log *slog.Logger) (*FFmpeg, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found in PATH: %w", err)
	}
	return &FFmpeg{BinaryPath: path, log: log}, nil
}

// Merge muxes one or two elementary streams into outputPath with stream
// copy, reading ffmpeg's machine progress output and rendering the elapsed
// output time as a fraction of the known duration.
func (f *FFmpeg) Merge(ctx context.Context, streams []string, outputPath string, duration float64) error {
	if len(streams) == 0 {
		return fmt.Errorf("no input streams to merge: %w", domain.ErrArgument)
	}

	args := []string{"-y", "-nostats", "-progress", "pipe:1"}
	for _, s := range streams {
		args = append(args, "-i", s)
	}
	args = append(args, "-c:v", "copy", "-c:a", "copy", outputPath)

	cmd := exec.CommandContext(ctx, f.BinaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		m := outTimeRe.FindStringSubmatch(scanner.Text())
		if m != nil && duration > 0 {
			elapsed := parseClock(m)
			fmt.Printf("\rMerging audio and video: %5.1f%%      ", elapsed/duration*100)
		}
	}
	fmt.Println()

	if err := cmd.Wait(); err != nil {
		return domain.FormatNotAvailablef("ffmpeg failed to merge streams: %q", lastNonEmptyLine(stderr.Bytes()))
	}
	return nil
}

func parseClock(m []string) float64 {
	h, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + min*60 + s
}

var taggableExtensions = map[string]bool{
	".mp4": true,
	".m4a": true,
	".m4v": true,
}

// EmbedTags rewrites an MP4-family container with title/uploader/description
// metadata. A no-op for other container types.
func (f *FFmpeg) EmbedTags(ctx context.Context, path string, video *domain.Video) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !taggableExtensions[ext] {
		f.log.Info("container metadata is not supported for this file extension, skipping", "path", path)
		return nil
	}

	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tagged" + ext

	args := []string{"-y", "-nostats", "-i", path, "-c", "copy"}
	if video.Title != "" {
		args = append(args, "-metadata", "title="+video.Title)
	}
	if video.Uploader != "" {
		args = append(args, "-metadata", "artist="+video.Uploader)
	}
	if video.Description != "" {
		args = append(args, "-metadata", "description="+video.Description)
	}
	args = append(args, tmp)

	cmd := exec.CommandContext(ctx, f.BinaryPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmp)
		return domain.FormatNotAvailablef("ffmpeg failed to write tags: %q", lastNonEmptyLine(out))
	}
	return os.Rename(tmp, path)
}

func lastNonEmptyLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
