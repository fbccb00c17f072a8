package shared

import (
	"testing"
	"time"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "song title|artist name",
		},
		{
			name:   "extra whitespace",
			title:  "  Song   Title  ",
			artist: "  Artist   Name  ",
			want:   "song title|artist name",
		},
		{
			name:   "mixed case",
			title:  "SoNg TiTlE",
			artist: "ArTiSt NaMe",
			want:   "song title|artist name",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayKeys(t *testing.T) {
	t.Run("DisplayKey", func(t *testing.T) {
		if got := DisplayKey("Creep", "Radiohead"); got != "Creep - Radiohead" {
			t.Errorf("DisplayKey() = %q", got)
		}
	})

	t.Run("DisplayKeyToTrackKey", func(t *testing.T) {
		if got := DisplayKeyToTrackKey("Creep - Radiohead"); got != "creep|radiohead" {
			t.Errorf("DisplayKeyToTrackKey() = %q", got)
		}
		if got := DisplayKeyToTrackKey("Untitled"); got != "untitled|" {
			t.Errorf("DisplayKeyToTrackKey() without separator = %q", got)
		}
	})
}

func TestStartOfDay(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 4, 5, 0, time.UTC)
	got := StartOfDay(now)
	want := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tc := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a longer sentence", 8, "a lon..."},
		{"abc", 0, "abc"},
		{"abcdef", 2, "ab"},
	}

	for _, tt := range tc {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
