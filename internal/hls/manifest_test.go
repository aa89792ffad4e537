package hls

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ayanobu/nicofetch/internal/domain"
)

const masterManifest = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="main",DEFAULT=YES,URI="audio/playlist.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2000000,CODECS="avc1.4d401f,mp4a.40.2",AUDIO="aac"
video-high/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=500000,CODECS="avc1.4d401f,mp4a.40.2",AUDIO="aac"
video-low/playlist.m3u8
`

const mediaManifest = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/k1",IV=0x000102030405060708090a0b0c0d0e0f
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXTINF:4.2,
seg2.ts
#EXT-X-ENDLIST
`

func TestBestStream(t *testing.T) {
	uri, err := BestStream(masterManifest)
	if err != nil {
		t.Fatalf("BestStream: %v", err)
	}
	if uri != "video-high/playlist.m3u8" {
		t.Errorf("BestStream = %q, want highest-bandwidth variant", uri)
	}
}

func TestBestStreamTieKeepsFirst(t *testing.T) {
	manifest := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000
first.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1000000
second.m3u8
`
	uri, err := BestStream(manifest)
	if err != nil {
		t.Fatalf("BestStream: %v", err)
	}
	if uri != "first.m3u8" {
		t.Errorf("BestStream tie = %q, want first variant", uri)
	}
}

func TestBestStreamRejectsMediaPlaylist(t *testing.T) {
	if _, err := BestStream(mediaManifest); !errors.Is(err, domain.ErrFormatNotAvailable) {
		t.Errorf("BestStream on media playlist: err = %v, want ErrFormatNotAvailable", err)
	}
}

func TestMediaURI(t *testing.T) {
	uri, err := MediaURI(masterManifest, "audio")
	if err != nil {
		t.Fatalf("MediaURI: %v", err)
	}
	if uri != "audio/playlist.m3u8" {
		t.Errorf("MediaURI = %q, want audio rendition", uri)
	}

	if _, err := MediaURI(masterManifest, "subtitles"); !errors.Is(err, domain.ErrFormatNotAvailable) {
		t.Errorf("MediaURI for missing type: err = %v, want ErrFormatNotAvailable", err)
	}
}

func TestParseMediaPlaylist(t *testing.T) {
	got, err := ParseMediaPlaylist(mediaManifest)
	if err != nil {
		t.Fatalf("ParseMediaPlaylist: %v", err)
	}

	if got.KeyURI != "https://keys.example.com/k1" {
		t.Errorf("KeyURI = %q", got.KeyURI)
	}
	wantIV := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if !bytes.Equal(got.IV, wantIV) {
		t.Errorf("IV = %x, want %x", got.IV, wantIV)
	}
	if got.InitURI != "init.mp4" {
		t.Errorf("InitURI = %q", got.InitURI)
	}
	wantSegments := []string{"seg0.ts", "seg1.ts", "seg2.ts"}
	if len(got.Segments) != len(wantSegments) {
		t.Fatalf("Segments = %v, want %v", got.Segments, wantSegments)
	}
	for i, s := range wantSegments {
		if got.Segments[i] != s {
			t.Errorf("Segments[%d] = %q, want %q", i, got.Segments[i], s)
		}
	}
}

func TestParseMediaPlaylistMissingPieces(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(string) string
	}{
		{"no key", func(m string) string {
			return strings.Replace(m, `#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/k1",IV=0x000102030405060708090a0b0c0d0e0f`+"\n", "", 1)
		}},
		{"no iv", func(m string) string {
			return strings.Replace(m, `,IV=0x000102030405060708090a0b0c0d0e0f`, "", 1)
		}},
		{"no init", func(m string) string {
			return strings.Replace(m, `#EXT-X-MAP:URI="init.mp4"`+"\n", "", 1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMediaPlaylist(tt.mutate(mediaManifest))
			if !errors.Is(err, domain.ErrFormatNotAvailable) {
				t.Errorf("err = %v, want ErrFormatNotAvailable", err)
			}
		})
	}
}
