package hls

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

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

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

func encryptSegment(t *testing.T, key, iv, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

// TestFetcherDownload serves an encrypted playlist end to end and checks
// the decrypted output is the init segment followed by the media segments
// in manifest order.
func TestFetcherDownload(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	initSegment := []byte("INIT")
	segments := [][]byte{
		[]byte("segment zero payload"),
		[]byte("segment one payload, longer than a block to exercise padding"),
		[]byte("s2"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/key", func(w http.ResponseWriter, r *http.Request) {
		w.Write(key)
	})
	mux.HandleFunc("/init.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write(initSegment)
	})
	for i, plain := range segments {
		enc := encryptSegment(t, key, iv, plain)
		mux.HandleFunc(fmt.Sprintf("/seg%d.ts", i), func(w http.ResponseWriter, r *http.Request) {
			w.Write(enc)
		})
	}
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="key",IV=0x000102030405060708090a0b0c0d0e0f
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXTINF:4.2,
seg2.ts
#EXT-X-ENDLIST
`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.m4v")
	fetcher := NewFetcher(testClient(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	var advanced int
	sink := advanceFunc(func(n int) { advanced += n })

	err := fetcher.Download(context.Background(), srv.URL+"/playlist.m3u8", dest, 3, sink)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := bytes.Join(append([][]byte{initSegment}, segments...), nil)
	if !bytes.Equal(got, want) {
		t.Errorf("output = %q, want %q", got, want)
	}
	if advanced != len(segments) {
		t.Errorf("progress advanced %d times, want %d", advanced, len(segments))
	}
}

type advanceFunc func(int)

func (f advanceFunc) Advance(n int) { f(n) }

func TestFetcherDownloadRejectsZeroWorkers(t *testing.T) {
	fetcher := NewFetcher(testClient(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := fetcher.Download(context.Background(), "http://unused.invalid/p.m3u8", "unused", 0, nil)
	if !errors.Is(err, domain.ErrArgument) {
		t.Errorf("err = %v, want ErrArgument", err)
	}
}

func TestFetcherDownloadFailedSegment(t *testing.T) {
	key := []byte("0123456789abcdef")

	mux := http.NewServeMux()
	mux.HandleFunc("/key", func(w http.ResponseWriter, r *http.Request) {
		w.Write(key)
	})
	mux.HandleFunc("/init.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("INIT"))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		// Not block-aligned; must fail decryption checks.
		w.Write([]byte("short"))
	})
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="key",IV=0x000102030405060708090a0b0c0d0e0f
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.0,
seg0.ts
#EXT-X-ENDLIST
`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.m4v")
	fetcher := NewFetcher(testClient(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := fetcher.Download(context.Background(), srv.URL+"/playlist.m3u8", dest, 2, nil)
	if !errors.Is(err, domain.ErrFormatNotAvailable) {
		t.Errorf("err = %v, want ErrFormatNotAvailable", err)
	}
}

func TestPkcs7Unpad(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []byte
		wantErr bool
	}{
		{name: "full padding block", data: pkcs7Pad([]byte("0123456789abcdef"), 16), want: []byte("0123456789abcdef")},
		{name: "partial padding", data: pkcs7Pad([]byte("abc"), 16), want: []byte("abc")},
		{name: "zero pad byte", data: append(bytes.Repeat([]byte{'x'}, 15), 0), wantErr: true},
		{name: "pad byte too large", data: append(bytes.Repeat([]byte{'x'}, 15), 17), wantErr: true},
		{name: "inconsistent padding", data: append(bytes.Repeat([]byte{'x'}, 14), 1, 2), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pkcs7Unpad(tt.data, 16)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
