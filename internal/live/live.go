// Package live resolves playable stream URLs for live broadcasts. The
// delivery service only serves the playlist while a websocket watch
// session stays open, so the watcher keeps the seat alive until the
// caller is done.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/hls"
	"github.com/ayanobu/nicofetch/internal/transport"
)

const (
	broadcastURLTemplate = "https://live.nicovideo.jp/watch/%s"

	// The seat is dropped server-side without a periodic watching frame.
	keepSeatInterval = 30 * time.Second
)

var embeddedDataRe = regexp.MustCompile(`(?s)<script[^>]*\bid="embedded-data"[^>]*\bdata-props="([^"]*)"`)

type broadcastParams struct {
	Site struct {
		Relive struct {
			WebSocketURL string `json:"webSocketUrl"`
		} `json:"relive"`
	} `json:"site"`
	Program struct {
		Status string `json:"status"`
		Title  string `json:"title"`
	} `json:"program"`
	UserProgramWatch struct {
		RejectedReasons []string `json:"rejectedReasons"`
	} `json:"userProgramWatch"`
}

// frame is the subset of watch-session messages the watcher acts on.
type frame struct {
	Type string `json:"type"`
	Data struct {
		URI string `json:"uri"`
	} `json:"data"`
	Body struct {
		Params []string `json:"params"`
	} `json:"body"`
}

func permitFrame() map[string]any {
	return map[string]any{
		"type": "startWatching",
		"data": map[string]any{
			"stream": map[string]any{
				"quality":   "super_high",
				"protocol":  "hls",
				"latency":   "low",
				"chasePlay": false,
			},
			"room": map[string]any{
				"protocol":    "webSocket",
				"commentable": true,
			},
			"reconnect": false,
		},
	}
}

type Watcher struct {
	client   *transport.Client
	log      *slog.Logger
	interval time.Duration
}

func NewWatcher(client *transport.Client, log *slog.Logger) *Watcher {
	return &Watcher{client: client, log: log, interval: keepSeatInterval}
}

// Session is an open watch session. StreamURL stays valid until Close.
type Session struct {
	StreamURL string

	conn *websocket.Conn
	wmu  sync.Mutex
	done chan struct{}
}

// Open fetches the broadcast page for id, connects the watch session and
// resolves the best stream playlist URL. The caller must Close the
// returned session; the playlist is revoked once the seat is released.
func (w *Watcher) Open(ctx context.Context, id string) (*Session, error) {
	page, err := w.client.GetString(ctx, fmt.Sprintf(broadcastURLTemplate, id))
	if err != nil {
		return nil, fmt.Errorf("could not fetch broadcast page for %s: %w", id, err)
	}

	m := embeddedDataRe.FindStringSubmatch(page)
	if m == nil {
		return nil, domain.FormatNotAvailablef("could not retrieve broadcast info for %s", id)
	}

	var params broadcastParams
	if err := json.Unmarshal([]byte(html.UnescapeString(m[1])), &params); err != nil {
		return nil, domain.ParameterExtractionf("could not decode broadcast parameters: %v", err)
	}
	if len(params.UserProgramWatch.RejectedReasons) != 0 {
		return nil, domain.ParameterExtractionf("broadcast not available to user: %v", params.UserProgramWatch.RejectedReasons)
	}
	if params.Program.Status == "ENDED" {
		return nil, fmt.Errorf("timeshift downloads: %w", domain.ErrFormatNotSupported)
	}
	if params.Site.Relive.WebSocketURL == "" {
		return nil, domain.FormatNotAvailablef("broadcast %s offers no watch session url", id)
	}

	return w.connect(ctx, params.Site.Relive.WebSocketURL)
}

func (w *Watcher) connect(ctx context.Context, wsURL string) (*Session, error) {
	dialer := websocket.Dialer{Jar: w.client.HTTPClient().Jar}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open watch session: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s := &Session{conn: conn, done: make(chan struct{})}
	if err := s.write(permitFrame()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not request seat: %w", err)
	}

	streamURL, err := s.awaitStream(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}

	master, err := w.client.GetString(ctx, streamURL)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not fetch master playlist: %w", err)
	}
	best, err := hls.BestStream(master)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resolved, err := resolveRef(streamURL, best)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.StreamURL = resolved

	go s.keepAlive(w.interval, w.log)
	return s, nil
}

// awaitStream reads session frames until the server grants a stream URI.
func (s *Session) awaitStream(ctx context.Context) (string, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("watch session closed: %w", err)
		}

		switch f.Type {
		case "stream":
			if f.Data.URI == "" {
				return "", domain.ParameterExtractionf("stream frame carries no uri")
			}
			return f.Data.URI, nil
		case "ping":
			if err := s.write(map[string]string{"type": "pong"}); err != nil {
				return "", err
			}
		case "disconnect":
			detail := ""
			if len(f.Body.Params) > 1 {
				detail = f.Body.Params[1]
			}
			return "", domain.FormatNotAvailablef("server sent disconnect (%s)", detail)
		}
	}
}

// keepAlive answers pings and sends periodic watching frames until the
// session closes.
func (s *Session) keepAlive(interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Reader drains server frames so pings keep getting answered.
	readErr := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := s.conn.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			if f.Type == "ping" {
				if err := s.write(map[string]string{"type": "pong"}); err != nil {
					readErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case err := <-readErr:
			if log != nil {
				log.Info("watch session ended", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.write(map[string]string{"type": "keepSeat"}); err != nil {
				if log != nil {
					log.Warn("could not send watching frame", "error", err)
				}
				return
			}
		}
	}
}

func (s *Session) write(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close releases the seat and shuts the connection down.
func (s *Session) Close() error {
	close(s.done)
	return s.conn.Close()
}

func resolveRef(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}
