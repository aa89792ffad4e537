package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayanobu/nicofetch/internal/app"
	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/downloader"
	"github.com/ayanobu/nicofetch/internal/live"
	"github.com/ayanobu/nicofetch/internal/mux"
	"github.com/ayanobu/nicofetch/internal/transport"
)

var getCmd = &cobra.Command{
	Use:   "get [url or id]...",
	Short: "Download one or more videos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGet,
}

func init() {
	f := getCmd.Flags()
	f.StringP("out-dir", "o", "", "output directory")
	f.IntP("threads", "r", 0, "download with N parallel range requests")
	f.Int("segment-workers", 0, "concurrent segment fetches for HLS downloads")
	f.StringP("username", "u", "", "account email address or telephone number")
	f.StringP("password", "p", "", "account password")
	f.String("session-cookie", "", "user_session cookie value (string or filepath)")
	f.BoolP("no-login", "g", false, "create a download session without logging in")
	f.StringP("proxy", "y", "", "http or socks proxy")
	f.String("video-quality", "", "video quality to download (highest, lowest, or ID)")
	f.String("audio-quality", "", "audio quality to download (highest, lowest, or ID)")
	f.Bool("no-video", false, "download only the audio track")
	f.Bool("no-audio", false, "download only the video track")
	f.BoolP("skip-media", "s", false, "skip the media download, only write sidecar files")
	f.Bool("dump-metadata", false, "write a video metadata JSON next to the download")
	f.Bool("dump-thumbnail", false, "write the video thumbnail next to the download")
	f.Bool("dump-comments", false, "write the comment threads next to the download")
	f.BoolP("add-metadata", "t", false, "embed title and uploader into the container")
	f.Bool("break-on-existing", false, "stop the batch when an already-downloaded video is hit")

	rootCmd.AddCommand(getCmd)
}

// applyGetFlags overlays explicitly-set flags onto the loaded config.
func applyGetFlags(cmd *cobra.Command, appCtx *app.Context) {
	f := cmd.Flags()
	dl := &appCtx.Config.Download
	sess := &appCtx.Config.Session

	if f.Changed("out-dir") {
		dl.OutDir, _ = f.GetString("out-dir")
	}
	if f.Changed("threads") {
		dl.Threads, _ = f.GetInt("threads")
	}
	if f.Changed("segment-workers") {
		dl.SegmentWorkers, _ = f.GetInt("segment-workers")
	}
	if f.Changed("username") {
		sess.Username, _ = f.GetString("username")
	}
	if f.Changed("password") {
		sess.Password, _ = f.GetString("password")
	}
	if f.Changed("session-cookie") {
		sess.SessionCookie, _ = f.GetString("session-cookie")
	}
	if f.Changed("no-login") {
		sess.NoLogin, _ = f.GetBool("no-login")
	}
	if f.Changed("proxy") {
		sess.Proxy, _ = f.GetString("proxy")
	}
	if f.Changed("video-quality") {
		dl.VideoQuality, _ = f.GetString("video-quality")
	}
	if f.Changed("audio-quality") {
		dl.AudioQuality, _ = f.GetString("audio-quality")
	}
	if f.Changed("no-video") {
		dl.NoVideo, _ = f.GetBool("no-video")
	}
	if f.Changed("no-audio") {
		dl.NoAudio, _ = f.GetBool("no-audio")
	}
	if f.Changed("skip-media") {
		dl.SkipMedia, _ = f.GetBool("skip-media")
	}
	if f.Changed("dump-metadata") {
		dl.DumpMetadata, _ = f.GetBool("dump-metadata")
	}
	if f.Changed("dump-thumbnail") {
		dl.DumpThumbnail, _ = f.GetBool("dump-thumbnail")
	}
	if f.Changed("dump-comments") {
		dl.DumpComments, _ = f.GetBool("dump-comments")
	}
	if f.Changed("add-metadata") {
		dl.AddMetadata, _ = f.GetBool("add-metadata")
	}
	if f.Changed("break-on-existing") {
		dl.BreakOnExisting, _ = f.GetBool("break-on-existing")
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	appCtx, err := setup()
	if err != nil {
		return err
	}
	applyGetFlags(cmd, appCtx)

	openHistory(appCtx)
	defer appCtx.Close()

	client, err := transport.New(appCtx.Config.Session, appCtx.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := establishSession(ctx, appCtx, client); err != nil {
		return err
	}

	// ffmpeg is only required for merging and tagging; its absence is
	// surfaced when one of those steps is reached.
	ffmpeg, err := mux.NewFFmpeg(appCtx.Logger)
	if err != nil {
		appCtx.Logger.Warn("ffmpeg not found, merging and tagging are unavailable", "error", err)
	}

	svc := downloader.NewService(appCtx, client, ffmpeg)
	watcher := live.NewWatcher(client, appCtx.Logger)

	inputs, err := expandArgs(args)
	if err != nil {
		return err
	}

	for _, arg := range inputs {
		id, isLive, err := downloader.NormalizeID(arg)
		if err != nil {
			appCtx.Logger.Error("skipping input", "input", arg, "error", err)
			continue
		}

		if isLive {
			if err := watchBroadcast(ctx, watcher, id); err != nil {
				if domain.Recoverable(err) {
					appCtx.Logger.Error("broadcast failed", "id", id, "error", err)
					continue
				}
				return err
			}
			continue
		}

		if err := svc.Download(ctx, id); err != nil {
			if errors.Is(err, downloader.ErrBreakOnExisting) {
				appCtx.Logger.Info("existing download encountered, stopping")
				return nil
			}
			if domain.Recoverable(err) {
				appCtx.Logger.Error("download failed", "video", id, "error", err)
				continue
			}
			return err
		}
	}
	return nil
}

// expandArgs replaces .txt arguments with their lines, one URL or ID per
// line. Blank lines and lines starting with # are skipped.
func expandArgs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !strings.HasSuffix(arg, ".txt") {
			out = append(out, arg)
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read input list %s: %w", arg, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
	}
	return out, nil
}

// establishSession logs in or installs a session cookie per config.
func establishSession(ctx context.Context, appCtx *app.Context, client *transport.Client) error {
	sess := appCtx.Config.Session
	switch {
	case sess.NoLogin:
		appCtx.Logger.Info("proceeding without login")
		return nil
	case sess.SessionCookie != "":
		return client.UseSessionCookie(ctx, sess.SessionCookie)
	case sess.Username != "" && sess.Password != "":
		return client.Login(ctx, sess.Username, sess.Password)
	}
	appCtx.Logger.Warn("no credentials configured, proceeding without login")
	return nil
}

// watchBroadcast opens a live watch session and prints the stream URL.
// The seat is kept alive until the user interrupts.
func watchBroadcast(ctx context.Context, watcher *live.Watcher, id string) error {
	sess, err := watcher.Open(ctx, id)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Println("Generated stream URL. Keep this process running to keep the stream active. Press ^C to exit.")
	fmt.Println(sess.StreamURL)

	<-ctx.Done()
	return nil
}
