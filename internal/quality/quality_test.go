package quality

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ayanobu/nicofetch/internal/domain"
)

func testSources() []domain.Source {
	return []domain.Source{
		{ID: "high", IsAvailable: true, BitRate: 4000},
		{ID: "mid", IsAvailable: true, BitRate: 2000},
		{ID: "low", IsAvailable: false, BitRate: 1000},
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		sources []domain.Source
		quality string
		want    []string
		wantErr bool
	}{
		{name: "highest", sources: testSources(), quality: "highest", want: []string{"high"}},
		{name: "lowest unavailable", sources: testSources(), quality: "lowest", wantErr: true},
		{name: "literal match", sources: testSources(), quality: "mid", want: []string{"mid"}},
		{name: "literal case insensitive", sources: testSources(), quality: "MID", want: []string{"mid"}},
		{name: "literal unavailable", sources: testSources(), quality: "low", wantErr: true},
		{name: "unknown literal", sources: testSources(), quality: "ultra", wantErr: true},
		{name: "default returns all available", sources: testSources(), quality: "", want: []string{"high", "mid"}},
		{name: "empty source list", sources: nil, quality: "highest", wantErr: true},
		{
			name: "nothing available",
			sources: []domain.Source{
				{ID: "a", IsAvailable: false, BitRate: 2},
				{ID: "b", IsAvailable: false, BitRate: 1},
			},
			quality: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.sources, tt.quality, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Select(%q) expected error, got %v", tt.quality, got)
				}
				if !errors.Is(err, domain.ErrFormatNotAvailable) {
					t.Errorf("Select(%q) error = %v, want ErrFormatNotAvailable", tt.quality, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select(%q) unexpected error: %v", tt.quality, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Select(%q) = %v, want %v", tt.quality, got, tt.want)
			}
		})
	}
}

func TestSelectHighestUnavailable(t *testing.T) {
	sources := []domain.Source{
		{ID: "high", IsAvailable: false, BitRate: 2},
		{ID: "low", IsAvailable: true, BitRate: 1},
	}
	if _, err := Select(sources, "highest", nil); err == nil {
		t.Fatal("expected error for unavailable highest source")
	}
}
