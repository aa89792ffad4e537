// Package hls handles the manifest-based delivery generation: playlist
// parsing and the encrypted segment download path.
package hls

import (
	"encoding/hex"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/ayanobu/nicofetch/internal/domain"
)

// BestStream returns the sub-playlist URI of the highest-bandwidth variant
// in a master manifest. Ties resolve to the first variant seen.
func BestStream(manifest string) (string, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(manifest), false)
	if err != nil {
		return "", domain.FormatNotAvailablef("could not parse manifest: %v", err)
	}
	master, ok := pl.(*m3u8.MasterPlaylist)
	if listType != m3u8.MASTER || !ok || len(master.Variants) == 0 {
		return "", domain.FormatNotAvailablef("could not retrieve stream playlist from manifest")
	}

	best := -1
	bestURI := ""
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if int(v.Bandwidth) > best {
			best = int(v.Bandwidth)
			bestURI = v.URI
		}
	}
	if bestURI == "" {
		return "", domain.FormatNotAvailablef("could not retrieve stream playlist from manifest")
	}
	return bestURI, nil
}

// MediaURI returns the first alternative rendition of the given type
// (e.g. "audio") referenced by a master manifest.
func MediaURI(manifest, mediaType string) (string, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(manifest), false)
	if err != nil {
		return "", domain.FormatNotAvailablef("could not parse manifest: %v", err)
	}
	master, ok := pl.(*m3u8.MasterPlaylist)
	if listType != m3u8.MASTER || !ok {
		return "", domain.FormatNotAvailablef("could not retrieve media playlist from manifest")
	}

	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, alt := range v.Alternatives {
			if alt == nil {
				continue
			}
			if strings.EqualFold(alt.Type, mediaType) && alt.URI != "" {
				return alt.URI, nil
			}
		}
	}
	return "", domain.FormatNotAvailablef("could not retrieve media playlist from manifest")
}

// MediaPlaylist is the parsed form of one variant's playlist: the shared
// encryption key resource, the initialization segment and the ordered media
// segments.
type MediaPlaylist struct {
	KeyURI   string
	IV       []byte
	InitURI  string
	Segments []string
}

// ParseMediaPlaylist extracts key, init map and segment references from a
// media playlist. Each missing piece fails with a format-not-available
// error since the fetch path cannot proceed without it.
func ParseMediaPlaylist(playlist string) (*MediaPlaylist, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(playlist), false)
	if err != nil {
		return nil, domain.FormatNotAvailablef("could not parse media playlist: %v", err)
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if listType != m3u8.MEDIA || !ok {
		return nil, domain.FormatNotAvailablef("could not retrieve segments from manifest")
	}

	out := &MediaPlaylist{}

	key := media.Key
	if key == nil {
		// Per-segment keys: the delivery service shares one key, take the first.
		for _, seg := range media.Segments {
			if seg != nil && seg.Key != nil {
				key = seg.Key
				break
			}
		}
	}
	if key == nil || key.URI == "" {
		return nil, domain.FormatNotAvailablef("could not retrieve key file from manifest")
	}
	out.KeyURI = key.URI
	if iv := strings.TrimPrefix(strings.TrimPrefix(key.IV, "0x"), "0X"); iv != "" {
		decoded, err := hex.DecodeString(iv)
		if err != nil {
			return nil, domain.FormatNotAvailablef("could not decode key IV %q", key.IV)
		}
		out.IV = decoded
	}
	if len(out.IV) == 0 {
		return nil, domain.FormatNotAvailablef("could not retrieve key IV from manifest")
	}

	initMap := media.Map
	if initMap == nil {
		for _, seg := range media.Segments {
			if seg != nil && seg.Map != nil {
				initMap = seg.Map
				break
			}
		}
	}
	if initMap == nil || initMap.URI == "" {
		return nil, domain.FormatNotAvailablef("could not retrieve init file from manifest")
	}
	out.InitURI = initMap.URI

	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		out.Segments = append(out.Segments, seg.URI)
	}
	if len(out.Segments) == 0 {
		return nil, domain.FormatNotAvailablef("could not retrieve segments from manifest")
	}
	return out, nil
}
