package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayanobu/nicofetch/internal/config"
	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/transport"
)

func testClient(t *testing.T) *transport.Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := transport.New(config.SessionConfig{RetryAttempts: 1}, log)
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return client
}

func testDownloader(t *testing.T) *Downloader {
	t.Helper()
	return NewDownloader(testClient(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// rangeServer serves content honoring HEAD and Range requests.
func rangeServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Unix(0, 0), bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func randomContent(t *testing.T, n int) []byte {
	t.Helper()
	content := make([]byte, n)
	if _, err := rand.Read(content); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return content
}

func TestPartName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"video.mp4", "video.part.mp4"},
		{"dir/video.m4a", "dir/video.part.m4a"},
		{"noext", "noext.part"},
	}
	for _, tt := range tests {
		if got := PartName(tt.in); got != tt.want {
			t.Errorf("PartName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchSingleThread(t *testing.T) {
	content := randomContent(t, 10*blockSize+123)
	srv := rangeServer(t, content)

	finalPath := filepath.Join(t.TempDir(), "video.mp4")
	transferred, err := testDownloader(t).Fetch(context.Background(), srv.URL, finalPath, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !transferred {
		t.Error("Fetch reported no transfer for a fresh download")
	}

	got, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded content differs from source")
	}
	if _, err := os.Stat(PartName(finalPath)); !os.IsNotExist(err) {
		t.Error("part file left behind after completion")
	}
}

func TestFetchMultiThreadMatchesSingle(t *testing.T) {
	content := randomContent(t, 64*blockSize+7)
	srv := rangeServer(t, content)

	for _, threads := range []int{1, 4} {
		finalPath := filepath.Join(t.TempDir(), "video.mp4")
		transferred, err := testDownloader(t).Fetch(context.Background(), srv.URL, finalPath, threads)
		if err != nil {
			t.Fatalf("Fetch threads=%d: %v", threads, err)
		}
		if !transferred {
			t.Errorf("Fetch threads=%d reported no transfer", threads)
		}
		got, err := os.ReadFile(finalPath)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("threads=%d: downloaded content differs from source", threads)
		}
	}
}

func TestFetchAlreadyComplete(t *testing.T) {
	content := randomContent(t, 2*blockSize)
	srv := rangeServer(t, content)

	finalPath := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(finalPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	transferred, err := testDownloader(t).Fetch(context.Background(), srv.URL, finalPath, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if transferred {
		t.Error("Fetch transferred bytes for an already-complete file")
	}
}

func TestFetchResumesMatchingPartial(t *testing.T) {
	content := randomContent(t, 8*blockSize+50)
	srv := rangeServer(t, content)

	dir := t.TempDir()
	finalPath := filepath.Join(dir, "video.mp4")

	// A correct partial: the first 3.5 blocks of the real content.
	cut := 3*blockSize + blockSize/2
	if err := os.WriteFile(PartName(finalPath), content[:cut], 0644); err != nil {
		t.Fatal(err)
	}

	transferred, err := testDownloader(t).Fetch(context.Background(), srv.URL, finalPath, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !transferred {
		t.Error("Fetch reported no transfer for a resumed download")
	}

	got, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("resumed content differs from source")
	}
}

func TestFetchSelfHealsCorruptPartial(t *testing.T) {
	content := randomContent(t, 8*blockSize)
	srv := rangeServer(t, content)

	dir := t.TempDir()
	finalPath := filepath.Join(dir, "video.mp4")

	// A corrupt partial: right length prefix, one flipped byte inside the
	// verification overlap.
	cut := 4 * blockSize
	corrupt := append([]byte(nil), content[:cut]...)
	corrupt[cut-10] ^= 0xff
	if err := os.WriteFile(PartName(finalPath), corrupt, 0644); err != nil {
		t.Fatal(err)
	}

	transferred, err := testDownloader(t).Fetch(context.Background(), srv.URL, finalPath, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !transferred {
		t.Error("Fetch reported no transfer after self-healing")
	}

	got, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("self-healed content differs from source")
	}
}

func TestFetchOversizePartial(t *testing.T) {
	content := randomContent(t, 4*blockSize)
	srv := rangeServer(t, content)

	dir := t.TempDir()
	finalPath := filepath.Join(dir, "video.mp4")

	oversize := append(append([]byte(nil), content...), []byte("trailing junk")...)
	if err := os.WriteFile(PartName(finalPath), oversize, 0644); err != nil {
		t.Fatal(err)
	}

	d := testDownloader(t)

	// Without trusted container tags the oversize file is rejected.
	_, err := d.Fetch(context.Background(), srv.URL, finalPath, 1)
	if !errors.Is(err, domain.ErrFormatNotAvailable) {
		t.Errorf("err = %v, want ErrFormatNotAvailable", err)
	}

	// With tags it is treated as a finished download from a previous run.
	d.TagCheck = func(string) bool { return true }
	transferred, err := d.Fetch(context.Background(), srv.URL, finalPath, 1)
	if err != nil {
		t.Fatalf("Fetch with tag check: %v", err)
	}
	if transferred {
		t.Error("Fetch transferred bytes for a tagged oversize file")
	}
}

func TestFetchRejectsZeroThreads(t *testing.T) {
	_, err := testDownloader(t).Fetch(context.Background(), "http://unused.invalid/x", "unused", 0)
	if !errors.Is(err, domain.ErrArgument) {
		t.Errorf("err = %v, want ErrArgument", err)
	}
}
