// Package quality picks encoding variants from the best-first source lists
// returned by the watch API.
package quality

import (
	"log/slog"
	"strings"

	"github.com/ayanobu/nicofetch/internal/domain"
)

// Select resolves a requested quality token against a source list sorted
// best-first by the upstream API.
//
//	"highest"  -> the first source; error when it is unavailable
//	"lowest"   -> the last source; error when it is unavailable
//	literal ID -> case-insensitive match among available sources
//	""         -> every available source ID (callers use the first)
//
// The best-first ordering is an upstream guarantee, not something we sort
// ourselves; Select checks it and logs when it does not hold.
func Select(sources []domain.Source, quality string, log *slog.Logger) ([]string, error) {
	if len(sources) == 0 {
		return nil, domain.FormatNotAvailablef("no sources offered")
	}

	if log != nil && !sortedDescending(sources) {
		log.Warn("source list is not sorted best-first; highest/lowest selection may be wrong")
	}

	highest := sources[0]
	lowest := sources[len(sources)-1]

	switch strings.ToLower(quality) {
	case "highest":
		if !highest.IsAvailable {
			return nil, domain.FormatNotAvailablef("highest quality is not currently available")
		}
		return []string{highest.ID}, nil
	case "lowest":
		if !lowest.IsAvailable {
			return nil, domain.FormatNotAvailablef("lowest quality is not currently available")
		}
		return []string{lowest.ID}, nil
	}

	available := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.IsAvailable {
			available = append(available, s.ID)
		}
	}
	if len(available) == 0 {
		return nil, domain.FormatNotAvailablef("no sources are currently available")
	}

	if quality != "" {
		for _, id := range available {
			if strings.EqualFold(id, quality) {
				return []string{id}, nil
			}
		}
		return nil, domain.FormatNotAvailablef("quality %q is not available (available: %s)",
			quality, strings.Join(available, ", "))
	}

	// No quality requested: return every available variant. One later
	// revision narrowed this to just the best; we keep the wider behavior
	// so batch callers can fall back without a second resolution pass.
	return available, nil
}

func sortedDescending(sources []domain.Source) bool {
	for i := 1; i < len(sources); i++ {
		if sources[i].BitRate > sources[i-1].BitRate {
			return false
		}
	}
	return true
}
