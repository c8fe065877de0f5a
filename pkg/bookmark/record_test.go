package bookmark

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
)

func TestPartitionYear(t *testing.T) {
	tests := []struct {
		name     string
		created  string
		expected int
	}{
		{"last minutes of the year in Tokyo", "2023-12-31T23:30:00+09:00", 2023},
		{"first minutes of the year in Tokyo", "2024-01-01T00:05:00+09:00", 2024},
		{"UTC evening already next year in Tokyo", "2023-12-31T15:30:00Z", 2024},
		{"UTC timestamp still this year in Tokyo", "2023-12-31T14:59:59Z", 2023},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := ParseCreated(tt.created)
			if err != nil {
				t.Fatalf("ParseCreated(%q) error = %v", tt.created, err)
			}
			if got := PartitionYear(created.UnixMilli()); got != tt.expected {
				t.Errorf("PartitionYear(%s) = %d, want %d", tt.created, got, tt.expected)
			}
		})
	}
}

func TestExtractEID(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		eid    string
		wantOK bool
	}{
		{"marker present", "https://b.hatena.ne.jp/firststar_hateno/20231231#bookmark-4747184421499337007", "4747184421499337007", true},
		{"short id", "https://b.hatena.ne.jp/u/20231231#bookmark-123", "123", true},
		{"marker missing", "https://b.hatena.ne.jp/firststar_hateno/20231231#4747184421499337007", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eid, ok := ExtractEID(tt.uri)
			if ok != tt.wantOK || eid != tt.eid {
				t.Errorf("ExtractEID(%q) = (%q, %v), want (%q, %v)", tt.uri, eid, ok, tt.eid, tt.wantOK)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{"UTC afternoon", time.Date(2023, 12, 31, 13, 0, 27, 0, time.UTC), "2023-12-31"},
		{"epoch millis at Tokyo midnight", time.UnixMilli(1704034800000), "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDate(tt.t); got != tt.expected {
				t.Errorf("FormatDate() = %q, want %q", got, tt.expected)
			}
		})
	}

	if got := CompactDate(time.UnixMilli(1704034800000)); got != "20240101" {
		t.Errorf("CompactDate() = %q, want 20240101", got)
	}
}

func TestExcludeProtocol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://firststar-hateno.hatenablog.com/entry/2023/05/20/170926", "firststar-hateno.hatenablog.com/entry/2023/05/20/170926"},
		{"http://firststar-hateno.hatenablog.com/entry/2023/05/20/170926", "firststar-hateno.hatenablog.com/entry/2023/05/20/170926"},
		{"ftp://example.com/x", "ftp://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExcludeProtocol(tt.input); got != tt.expected {
				t.Errorf("ExcludeProtocol(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	raw := hatena.Bookmark{
		LocationID: "4747184421499337007",
		Created:    "2023-12-31T15:30:00Z",
		URL:        "https://firststar-hateno.hatenablog.com/entry/2023/05/20/170926",
		Comment:    "nice",
		Entry: hatena.Entry{
			Title:          "Post",
			TotalBookmarks: 12,
			Category:       hatena.Category{Title: "テクノロジー", Path: "it"},
			Image:          "https://example.com/i.png",
		},
	}

	rec, err := Build(raw, "firststar_hateno")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if rec.EID != "4747184421499337007" {
		t.Errorf("EID = %q", rec.EID)
	}
	// 15:30 UTC on Dec 31 is Jan 1 in Tokyo
	if want := "https://b.hatena.ne.jp/firststar_hateno/20240101#bookmark-4747184421499337007"; rec.CommentURL != want {
		t.Errorf("CommentURL = %q, want %q", rec.CommentURL, want)
	}
	if want := "https://b.hatena.ne.jp/entry/s/firststar-hateno.hatenablog.com/entry/2023/05/20/170926"; rec.EntryBookmarkURL != want {
		t.Errorf("EntryBookmarkURL = %q, want %q", rec.EntryBookmarkURL, want)
	}
	if rec.Year() != 2024 {
		t.Errorf("Year() = %d, want 2024", rec.Year())
	}
	if rec.Category != "it" || rec.BookmarkCount != 12 || rec.Title != "Post" {
		t.Errorf("entry fields not copied: %+v", rec)
	}
	if rec.Star != (StarTally{}) {
		t.Errorf("Star = %+v, want zero tally", rec.Star)
	}
	if eid, ok := ExtractEID(rec.CommentURL); !ok || eid != rec.EID {
		t.Errorf("ExtractEID(CommentURL) = (%q, %v), want the record eid", eid, ok)
	}
}

func TestBuild_InvalidTimestamp(t *testing.T) {
	_, err := Build(hatena.Bookmark{LocationID: "1", Created: "yesterday"}, "firststar_hateno")
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("Expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestParseCreated_ZonelessIsUTC(t *testing.T) {
	got, err := ParseCreated("2023-12-31T15:30:00")
	if err != nil {
		t.Fatalf("ParseCreated() error = %v", err)
	}
	want := time.Date(2023, 12, 31, 15, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseCreated() = %v, want %v", got, want)
	}
	if got.Location() != Tokyo {
		t.Errorf("Location() = %v, want Tokyo", got.Location())
	}
}
