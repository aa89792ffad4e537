// Package resolve turns a video ID into a concrete download plan by
// scraping the watch page's embedded parameter document and, for the
// manifest-based delivery generation, negotiating access rights.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ayanobu/nicofetch/internal/config"
	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/hls"
	"github.com/ayanobu/nicofetch/internal/quality"
	"github.com/ayanobu/nicofetch/internal/transport"
)

var (
	metaTagRe = regexp.MustCompile(`(?s)<meta[^>]*\bname="server-response"[^>]*>`)
	contentRe = regexp.MustCompile(`\bcontent="([^"]*)"`)
)

type Resolver struct {
	client *transport.Client
	log    *slog.Logger

	// Endpoint templates, overridable in tests.
	watchBase        string
	accessRightsBase string
}

func New(client *transport.Client, log *slog.Logger) *Resolver {
	return &Resolver{
		client:           client,
		log:              log,
		watchBase:        watchURLTemplate,
		accessRightsBase: hlsAccessRightsAPI,
	}
}

// Resolve fetches the watch page for id, extracts its parameters and
// returns a Video with metadata and a ready delivery plan.
func (r *Resolver) Resolve(ctx context.Context, id string, cfg config.DownloadConfig) (*domain.Video, error) {
	page, err := r.client.GetString(ctx, fmt.Sprintf(r.watchBase, id))
	if err != nil {
		return nil, fmt.Errorf("could not fetch watch page for %s: %w", id, err)
	}

	resp, err := extractServerResponse(page)
	if err != nil {
		return nil, err
	}

	w := resp.Data.Response
	if w.Video == nil {
		return nil, domain.ParameterExtractionf("watch page for %s carries no video parameters", id)
	}
	if w.Video.IsDeleted {
		return nil, domain.FormatNotAvailablef("video %s was deleted", id)
	}

	video := buildVideo(resp)

	switch {
	case w.Media.Domand != nil:
		err = r.resolveSegmented(ctx, video, resp, cfg)
	case w.Media.Delivery != nil:
		err = r.resolveLegacy(video, w.Media.Delivery, cfg)
	default:
		p := w.Payment.Video
		if p.IsPpv || p.IsAdmission || p.IsPremium {
			return nil, domain.FormatNotAvailablef("video %s requires payment or a channel membership", id)
		}
		return nil, domain.FormatNotAvailablef("no supported delivery method offered for %s", id)
	}
	if err != nil {
		return nil, err
	}
	return video, nil
}

// extractServerResponse locates the server-response meta tag and decodes
// the HTML-escaped JSON document in its content attribute.
func extractServerResponse(page string) (*serverResponse, error) {
	tag := metaTagRe.FindString(page)
	if tag == "" {
		return nil, domain.ParameterExtractionf("no %s tag on watch page", serverResponseField)
	}
	m := contentRe.FindStringSubmatch(tag)
	if m == nil {
		return nil, domain.ParameterExtractionf("%s tag has no content attribute", serverResponseField)
	}

	var resp serverResponse
	if err := json.Unmarshal([]byte(html.UnescapeString(m[1])), &resp); err != nil {
		return nil, domain.ParameterExtractionf("could not decode watch page parameters: %v", err)
	}
	return &resp, nil
}

func buildVideo(resp *serverResponse) *domain.Video {
	w := resp.Data.Response
	v := &domain.Video{
		ID:           w.Video.ID,
		Title:        w.Video.Title,
		Description:  w.Video.Description,
		ThumbnailURL: w.Video.Thumbnail.Best(),
		Published:    w.Video.RegisteredAt,
		Duration:     w.Video.Duration,
		Extension:    "mp4",
		ViewCount:    w.Video.Count.View,
		CommentCount: w.Video.Count.Comment,
		MylistCount:  w.Video.Count.Mylist,
		LikeCount:    w.Video.Count.Like,
	}

	if w.Owner != nil {
		// The page appends an honorific to the display name.
		v.Uploader = strings.TrimSuffix(w.Owner.Nickname, uploaderNameSuffix)
		v.UploaderID, _ = w.Owner.ID.Int64()
	}
	for _, t := range w.Tag.Items {
		v.Tags = append(v.Tags, t.Name)
	}
	if w.Comment != nil {
		v.ThreadKey = w.Comment.NvComment.ThreadKey
		v.ThreadParams = w.Comment.NvComment.Params
	}
	return v
}

// resolveSegmented negotiates manifest access: preflight plus a POST of
// the chosen variant pairs against the access-rights endpoint, then a
// fetch of the returned master manifest to locate per-track playlists.
func (r *Resolver) resolveSegmented(ctx context.Context, video *domain.Video, resp *serverResponse, cfg config.DownloadConfig) error {
	domand := resp.Data.Response.Media.Domand

	var videoIDs, audioIDs []string
	var err error
	if !cfg.NoVideo {
		videoIDs, err = quality.Select(toSources(domand.Videos), cfg.VideoQuality, r.log)
		if err != nil {
			return err
		}
	}
	if !cfg.NoAudio {
		audioIDs, err = quality.Select(toSources(domand.Audios), cfg.AudioQuality, r.log)
		if err != nil {
			return err
		}
	}
	video.VideoQuality = videoIDs
	video.AudioQuality = audioIDs

	endpoint := fmt.Sprintf(r.accessRightsBase, video.ID, resp.Data.Response.Client.WatchTrackID)
	if err := r.client.Options(ctx, endpoint); err != nil {
		return fmt.Errorf("access-rights preflight failed: %w", err)
	}

	payload, err := json.Marshal(map[string][][]string{"outputs": outputPairs(videoIDs, audioIDs)})
	if err != nil {
		return err
	}

	headers := apiHeaders()
	headers["X-Access-Right-Key"] = domand.AccessRightKey
	headers["X-Request-With"] = requestWithNico
	body, err := r.client.Post(ctx, endpoint, "application/json", string(payload), headers)
	if err != nil {
		return domain.FormatNotAvailablef("access-rights request failed: %v", err)
	}

	var rights accessRightsResponse
	if err := json.Unmarshal(body, &rights); err != nil {
		return domain.ParameterExtractionf("could not decode access-rights response: %v", err)
	}
	if rights.Data.ContentURL == "" {
		return domain.ParameterExtractionf("access-rights response carries no content url")
	}

	manifest, err := r.client.GetString(ctx, rights.Data.ContentURL)
	if err != nil {
		return fmt.Errorf("could not fetch master manifest: %w", err)
	}

	plan := &domain.SegmentedManifest{}
	if !cfg.NoVideo {
		plan.VideoURI, err = hls.BestStream(manifest)
		if err != nil {
			return err
		}
	}
	if !cfg.NoAudio {
		plan.AudioURI, err = hls.MediaURI(manifest, "audio")
		if err != nil {
			return err
		}
	}

	switch {
	case cfg.NoVideo:
		video.Extension = "m4a"
	case cfg.NoAudio:
		video.Extension = "m4v"
	}
	video.Plan = domain.DeliveryPlan{Segmented: plan}
	return nil
}

// outputPairs builds the variant combinations the access-rights endpoint
// grants. With both tracks present it is the cross product, best pair first.
func outputPairs(videoIDs, audioIDs []string) [][]string {
	var pairs [][]string
	switch {
	case len(videoIDs) == 0:
		for _, a := range audioIDs {
			pairs = append(pairs, []string{a})
		}
	case len(audioIDs) == 0:
		for _, v := range videoIDs {
			pairs = append(pairs, []string{v})
		}
	default:
		for _, v := range videoIDs {
			for _, a := range audioIDs {
				pairs = append(pairs, []string{v, a})
			}
		}
	}
	return pairs
}

// resolveLegacy maps the watch page's session block onto the XML session
// negotiator's inputs.
func (r *Resolver) resolveLegacy(video *domain.Video, delivery *deliveryInfo, cfg config.DownloadConfig) error {
	movie := delivery.Movie
	session := movie.Session
	if len(session.URLs) == 0 || session.URLs[0].URL == "" {
		return domain.ParameterExtractionf("delivery session carries no api url")
	}
	if len(session.Protocols) == 0 {
		return domain.ParameterExtractionf("delivery session carries no protocol")
	}

	var videoIDs, audioIDs []string
	var err error
	if !cfg.NoVideo {
		videoIDs, err = quality.Select(legacyToSources(movie.Videos), cfg.VideoQuality, r.log)
		if err != nil {
			return err
		}
	}
	if !cfg.NoAudio {
		audioIDs, err = quality.Select(legacyToSources(movie.Audios), cfg.AudioQuality, r.log)
		if err != nil {
			return err
		}
	}
	video.VideoQuality = videoIDs
	video.AudioQuality = audioIDs

	video.Plan = domain.DeliveryPlan{Legacy: &domain.LegacySession{
		SessionURL:        session.URLs[0].URL,
		RecipeID:          session.RecipeID,
		ContentID:         session.ContentID,
		Protocol:          session.Protocols[0],
		FileExtension:     "mp4",
		Priority:          session.Priority.String(),
		HeartbeatLifetime: session.HeartbeatLifetime,
		Token:             session.Token,
		Signature:         session.Signature,
		AuthType:          session.AuthTypes.HTTP,
		ServiceUserID:     session.ServiceUserID.String(),
		PlayerID:          session.PlayerID,
		VideoSources:      videoIDs,
		AudioSources:      audioIDs,
	}}
	return nil
}

func toSources(in []domandSource) []domain.Source {
	out := make([]domain.Source, len(in))
	for i, s := range in {
		out[i] = domain.Source{
			ID:           s.ID,
			IsAvailable:  s.IsAvailable,
			BitRate:      s.BitRate,
			Width:        s.Width,
			Height:       s.Height,
			Label:        s.Label,
			SamplingRate: s.SamplingRate,
		}
	}
	return out
}

func legacyToSources(in []legacySource) []domain.Source {
	out := make([]domain.Source, len(in))
	for i, s := range in {
		out[i] = domain.Source{
			ID:           s.ID,
			IsAvailable:  s.IsAvailable,
			BitRate:      s.Metadata.Bitrate,
			Width:        s.Metadata.Resolution.Width,
			Height:       s.Metadata.Resolution.Height,
			Label:        s.Metadata.Label,
			SamplingRate: s.Metadata.SamplingRate,
		}
	}
	return out
}

// Sources returns the available variant lists for display (the qualities
// subcommand) without committing to a delivery plan.
func (r *Resolver) Sources(ctx context.Context, id string) (videos, audios []domain.Source, err error) {
	page, err := r.client.GetString(ctx, fmt.Sprintf(r.watchBase, id))
	if err != nil {
		return nil, nil, fmt.Errorf("could not fetch watch page for %s: %w", id, err)
	}
	resp, err := extractServerResponse(page)
	if err != nil {
		return nil, nil, err
	}

	media := resp.Data.Response.Media
	switch {
	case media.Domand != nil:
		return toSources(media.Domand.Videos), toSources(media.Domand.Audios), nil
	case media.Delivery != nil:
		return legacyToSources(media.Delivery.Movie.Videos), legacyToSources(media.Delivery.Movie.Audios), nil
	}
	return nil, nil, domain.FormatNotAvailablef("no supported delivery method offered for %s", id)
}
