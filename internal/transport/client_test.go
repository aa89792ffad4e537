package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ayanobu/nicofetch/internal/config"
)

func newTestClient(t *testing.T, cfg config.SessionConfig) *Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestGetSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := newTestClient(t, config.SessionConfig{UserAgent: "test-agent/2.0", RetryAttempts: 1})
	body, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if gotUA != "test-agent/2.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "recovered")
	}))
	defer srv.Close()

	// Patch the backoff down so the test does not sleep for seconds.
	client := newTestClient(t, config.SessionConfig{RetryAttempts: 5})
	rt := client.http.Transport.(*retryTransport)
	rt.sleepUnit = 0

	body, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, config.SessionConfig{RetryAttempts: 5})
	rt := client.http.Transport.(*retryTransport)
	rt.sleepUnit = 0

	if _, err := client.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}

func TestRetryExhaustionReturnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, config.SessionConfig{RetryAttempts: 3})
	rt := client.http.Transport.(*retryTransport)
	rt.sleepUnit = 0

	if _, err := client.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Content-Length", "1234")
	}))
	defer srv.Close()

	client := newTestClient(t, config.SessionConfig{RetryAttempts: 1})
	n, err := client.Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if n != 1234 {
		t.Errorf("Head = %d, want 1234", n)
	}
}

func TestPostSendsHeaders(t *testing.T) {
	var gotContentType, gotCustom, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Frontend-Id")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, "done")
	}))
	defer srv.Close()

	client := newTestClient(t, config.SessionConfig{RetryAttempts: 1})
	body, err := client.Post(context.Background(), srv.URL, "application/json", `{"a":1}`,
		map[string]string{"X-Frontend-Id": "6"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if string(body) != "done" {
		t.Errorf("body = %q", body)
	}
	if gotContentType != "application/json" || gotCustom != "6" || gotBody != `{"a":1}` {
		t.Errorf("request: content-type=%q custom=%q body=%q", gotContentType, gotCustom, gotBody)
	}
}
