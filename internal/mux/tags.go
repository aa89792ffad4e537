package mux

import (
	"os"

	"github.com/dhowden/tag"
)

// HasContainerTags reports whether the file carries readable container
// metadata. Tags are only embedded after a completed download, so their
// presence is treated as a completion marker for oversize partial files.
func HasContainerTags(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return false
	}
	return m.Title() != "" || m.Artist() != ""
}
