package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ayanobu/nicofetch/internal/config"
)

const defaultUserAgent = "nicofetch/1.0"

// Client is the shared HTTP session for all remote calls: cookie jar,
// stable User-Agent, optional proxy, and transparent retry with capped
// exponential backoff for connection errors and a fixed set of 5xx codes.
type Client struct {
	http      *http.Client
	log       *slog.Logger
	userAgent string
}

func New(cfg config.SessionConfig, log *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("could not create cookie jar: %w", err)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.Proxy, err)
		}
		base.Proxy = http.ProxyURL(proxyURL)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 5
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		http: &http.Client{
			Jar:       jar,
			Transport: &retryTransport{base: base, attempts: attempts, log: log, sleepUnit: time.Second},
		},
		log:       log,
		userAgent: ua,
	}, nil
}

// HTTPClient exposes the underlying client for collaborators that manage
// their own requests (e.g. the websocket dialer needs the cookie jar).
func (c *Client) HTTPClient() *http.Client { return c.http }

// Do sends a request with the session User-Agent applied and returns the
// raw response. Callers own resp.Body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// Get fetches url and returns the body, failing on any non-2xx status.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GetString fetches url and returns the body as text.
func (c *Client) GetString(ctx context.Context, rawURL string) (string, error) {
	b, err := c.Get(ctx, rawURL)
	return string(b), err
}

// Head returns the Content-Length reported for url.
func (c *Client) Head(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HEAD %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("HEAD %s: no content length", rawURL)
	}
	return resp.ContentLength, nil
}

// Post sends body with the given content type and returns the response body.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("POST %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return b, nil
}

// Options issues a preflight OPTIONS request, ignoring the response body.
// Some API endpoints require it before a cross-origin style POST.
func (c *Client) Options(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// retryTransport retries connection errors and retryable 5xx responses with
// exponential backoff (2s, 4s, 8s...) capped at 30s per wait.
type retryTransport struct {
	base      http.RoundTripper
	attempts  int
	log       *slog.Logger
	sleepUnit time.Duration // scales the backoff; tests shrink it
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Requests with a non-rewindable body cannot be replayed.
	canRetry := req.Body == nil || req.GetBody != nil

	var resp *http.Response
	var err error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * t.sleepUnit
			if max := 30 * t.sleepUnit; delay > max {
				delay = max
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				req.Body = body
			}
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			if !canRetry || req.Context().Err() != nil {
				return nil, err
			}
			if t.log != nil {
				t.log.Warn("request failed, retrying", "url", req.URL.String(), "attempt", attempt+1, "error", err)
			}
			continue
		}
		if retryableStatus(resp.StatusCode) && canRetry && attempt < t.attempts-1 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if t.log != nil {
				t.log.Warn("retryable status, retrying", "url", req.URL.String(), "status", resp.StatusCode, "attempt", attempt+1)
			}
			continue
		}
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
