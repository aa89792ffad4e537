// Package downloader orchestrates the per-video pipeline: resolve, pick a
// transfer path, fetch, merge, tag, and record the outcome.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ayanobu/nicofetch/internal/app"
	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/engine"
	"github.com/ayanobu/nicofetch/internal/hls"
	"github.com/ayanobu/nicofetch/internal/metrics"
	"github.com/ayanobu/nicofetch/internal/mux"
	"github.com/ayanobu/nicofetch/internal/resolve"
	"github.com/ayanobu/nicofetch/internal/session"
	"github.com/ayanobu/nicofetch/internal/transport"
)

// ErrBreakOnExisting signals the batch loop to stop because an
// already-downloaded video was encountered and break_on_existing is set.
var ErrBreakOnExisting = errors.New("existing download encountered")

var inputRe = regexp.MustCompile(`(?:nicovideo\.jp/watch/)?((?:sm|nm|so)\d+|lv\d+)`)

// NormalizeID extracts a video or broadcast ID from a raw argument, which
// may be a bare ID or a watch URL. live reports lv-prefixed broadcast IDs.
func NormalizeID(input string) (id string, isLive bool, err error) {
	m := inputRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return "", false, fmt.Errorf("unrecognized input %q: %w", input, domain.ErrArgument)
	}
	id = m[1]
	return id, strings.HasPrefix(id, "lv"), nil
}

type Service struct {
	app      *app.Context
	client   *transport.Client
	resolver *resolve.Resolver
	fetcher  *hls.Fetcher
	engine   *engine.Downloader
	neg      *session.Negotiator
	ffmpeg   *mux.FFmpeg
}

// NewService wires the pipeline. ffmpeg may be nil; merging and tagging
// then fail with a clear error instead of at startup.
func NewService(appCtx *app.Context, client *transport.Client, ffmpeg *mux.FFmpeg) *Service {
	eng := engine.NewDownloader(client, appCtx.Logger)
	eng.TagCheck = mux.HasContainerTags

	return &Service{
		app:      appCtx,
		client:   client,
		resolver: resolve.New(client, appCtx.Logger),
		fetcher:  hls.NewFetcher(client, appCtx.Logger),
		engine:   eng,
		neg:      session.NewNegotiator(client, appCtx.Logger),
		ffmpeg:   ffmpeg,
	}
}

func (s *Service) Resolver() *resolve.Resolver { return s.resolver }

// Download runs the full pipeline for one video ID.
func (s *Service) Download(ctx context.Context, id string) error {
	cfg := s.app.Config.Download
	log := s.app.Logger

	s.app.Status.Begin(id, "")
	defer s.app.Status.End()

	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()

	if s.app.History != nil {
		done, err := s.app.History.IsComplete(ctx, id)
		if err != nil {
			log.Warn("history lookup failed", "video", id, "error", err)
		} else if done {
			log.Info("video already in download history, skipping", "video", id)
			metrics.DownloadsFinished.WithLabelValues("skipped").Inc()
			if cfg.BreakOnExisting {
				return ErrBreakOnExisting
			}
			return nil
		}
	}

	video, err := s.resolver.Resolve(ctx, id, cfg)
	if err != nil {
		s.recordFailure(ctx, id)
		return err
	}

	s.app.Status.Begin(video.ID, video.Title)
	finalPath := s.outputPath(video)

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create out_dir: %w", err)
	}

	s.recordStart(ctx, video, finalPath)

	transferred := true
	if cfg.SkipMedia {
		log.Info("skipping media download", "video", video.ID)
		transferred = false
	} else {
		transferred, err = s.transfer(ctx, video, finalPath)
		if err != nil {
			s.recordFailure(ctx, video.ID)
			metrics.DownloadsFinished.WithLabelValues("failed").Inc()
			return err
		}
	}

	if !cfg.SkipMedia && cfg.AddMetadata {
		s.app.Status.Stage("tagging")
		if s.ffmpeg == nil {
			return fmt.Errorf("cannot write container metadata, ffmpeg is not available")
		}
		if err := s.ffmpeg.EmbedTags(ctx, finalPath, video); err != nil {
			return err
		}
	}

	if err := s.writeSidecars(ctx, video, finalPath); err != nil {
		return err
	}

	s.recordComplete(ctx, video.ID, finalPath)
	metrics.DownloadsFinished.WithLabelValues("complete").Inc()
	log.Info("finished", "video", video.ID, "path", finalPath)

	if !transferred && cfg.BreakOnExisting {
		return ErrBreakOnExisting
	}
	return nil
}

// transfer moves the media bytes for video into finalPath, choosing the
// delivery path the resolver settled on. It reports whether any bytes were
// transferred this run (false means the file already existed complete).
func (s *Service) transfer(ctx context.Context, video *domain.Video, finalPath string) (bool, error) {
	switch {
	case video.Plan.Segmented != nil:
		return s.transferSegmented(ctx, video, finalPath)
	case video.Plan.Legacy != nil:
		return s.transferLegacy(ctx, video, finalPath)
	}
	return false, domain.FormatNotAvailablef("video %s has no delivery plan", video.ID)
}

// transferLegacy negotiates an XML session, keeps it alive with heartbeats
// for the whole transfer, and range-downloads the granted content URI.
func (s *Service) transferLegacy(ctx context.Context, video *domain.Video, finalPath string) (bool, error) {
	s.app.Status.Stage("negotiating")

	sess, err := s.neg.Negotiate(ctx, video.Plan.Legacy)
	if err != nil {
		return false, err
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	done := sess.StartHeartbeat(hbCtx)
	defer func() {
		stopHeartbeat()
		<-done
	}()

	s.app.Status.Stage("downloading")
	return s.engine.Fetch(ctx, sess.ContentURI, finalPath, s.app.Config.Download.Threads)
}

// transferSegmented downloads each selected track to a scratch directory
// and merges them into the final container.
func (s *Service) transferSegmented(ctx context.Context, video *domain.Video, finalPath string) (bool, error) {
	if _, err := os.Stat(finalPath); err == nil {
		s.app.Logger.Info("file exists and appears to have been completed", "path", finalPath)
		return false, nil
	}

	plan := video.Plan.Segmented
	cfg := s.app.Config.Download

	tmpDir, err := os.MkdirTemp(cfg.OutDir, ".nicofetch-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmpDir)

	s.app.Status.Stage("downloading")

	var streams []string
	if plan.VideoURI != "" {
		dest := filepath.Join(tmpDir, "video.m4v")
		s.app.Logger.Info("downloading video track", "video", video.ID)
		if err := s.fetcher.Download(ctx, plan.VideoURI, dest, cfg.SegmentWorkers, s.statusSink()); err != nil {
			return false, err
		}
		streams = append(streams, dest)
	}
	if plan.AudioURI != "" {
		dest := filepath.Join(tmpDir, "audio.m4a")
		s.app.Logger.Info("downloading audio track", "video", video.ID)
		if err := s.fetcher.Download(ctx, plan.AudioURI, dest, cfg.SegmentWorkers, s.statusSink()); err != nil {
			return false, err
		}
		streams = append(streams, dest)
	}
	if len(streams) == 0 {
		return false, domain.FormatNotAvailablef("no tracks selected for %s", video.ID)
	}

	if len(streams) == 1 {
		// Single track: the decrypted stream is already a valid container.
		return true, os.Rename(streams[0], finalPath)
	}

	s.app.Status.Stage("merging")
	if s.ffmpeg == nil {
		return false, fmt.Errorf("cannot merge audio and video, ffmpeg is not available")
	}
	if err := s.ffmpeg.Merge(ctx, streams, finalPath, video.Duration); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) writeSidecars(ctx context.Context, video *domain.Video, finalPath string) error {
	cfg := s.app.Config.Download

	if cfg.DumpMetadata {
		if err := resolve.DumpMetadata(video, finalPath); err != nil {
			return err
		}
	}
	if cfg.DumpThumbnail {
		if err := s.resolver.DumpThumbnail(ctx, video, finalPath); err != nil {
			return err
		}
	}
	if cfg.DumpComments {
		if err := s.resolver.DumpComments(ctx, video, finalPath); err != nil {
			return err
		}
	}
	return nil
}

// outputPath derives the destination file name from the video title,
// falling back to the ID for untitled or fully-sanitized-away titles.
func (s *Service) outputPath(video *domain.Video) string {
	name := sanitizeFileName(video.Title)
	if name == "" {
		name = video.ID
	}
	return filepath.Join(s.app.Config.Download.OutDir, name+"."+video.Extension)
}

var forbiddenChars = regexp.MustCompile(`[<>"\|?*]|[/\\:]`)

func sanitizeFileName(name string) string {
	return strings.TrimSpace(forbiddenChars.ReplaceAllString(name, "_"))
}

// statusSink feeds per-segment progress into the shared status snapshot.
// Advance is only called from the fetcher's ordered writer, so a plain
// counter is enough.
type segmentSink struct {
	status *app.Status
	n      int64
}

func (s *Service) statusSink() hls.ProgressSink {
	return &segmentSink{status: s.app.Status}
}

func (s *segmentSink) Advance(n int) {
	s.n += int64(n)
	s.status.Progress(s.n, 0)
}

func (s *Service) recordStart(ctx context.Context, video *domain.Video, path string) {
	if s.app.History == nil {
		return
	}
	err := s.app.History.Record(ctx, &domain.DownloadRecord{
		VideoID: video.ID,
		Title:   video.Title,
		Path:    path,
		Status:  domain.StatusActive,
	})
	if err != nil {
		s.app.Logger.Warn("could not record download start", "video", video.ID, "error", err)
	}
}

func (s *Service) recordComplete(ctx context.Context, videoID, path string) {
	if s.app.History == nil {
		return
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := s.app.History.MarkComplete(ctx, videoID, size); err != nil {
		s.app.Logger.Warn("could not record download completion", "video", videoID, "error", err)
	}
}

func (s *Service) recordFailure(ctx context.Context, videoID string) {
	if s.app.History == nil {
		return
	}
	if err := s.app.History.MarkFailed(ctx, videoID); err != nil {
		s.app.Logger.Warn("could not record download failure", "video", videoID, "error", err)
	}
}
