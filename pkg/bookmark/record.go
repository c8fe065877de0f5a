// Package bookmark turns raw bookmark feed items into the records stored in
// year partitions, and holds the star tally attached to each record.
//
// Dates are always interpreted in Asia/Tokyo: a bookmark created at
// 2023-12-31T23:30:00+09:00 belongs to 2023, one at 2024-01-01T00:05:00+09:00
// to 2024, regardless of the server's local zone.
package bookmark

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
)

// ErrInvalidTimestamp is returned by Build for items whose creation time
// cannot be parsed. Such items are rejected, not retried.
var ErrInvalidTimestamp = errors.New("invalid bookmark timestamp")

// EIDMarker precedes the eid in a bookmark comment URL.
const EIDMarker = "#bookmark-"

const (
	bookmarkSite = "https://b.hatena.ne.jp"
	tokyoOffset  = 9 * 60 * 60
)

// Tokyo is the zone every date in the pipeline is computed in. The fixed
// offset fallback covers hosts without a zoneinfo database; Japan has no DST.
var Tokyo = loadTokyo()

func loadTokyo() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", tokyoOffset)
}

// Record is one bookmark as persisted in a year partition.
type Record struct {
	EID              string    `json:"eid"`
	Title            string    `json:"title"`
	BookmarkCount    int       `json:"bookmarkCount"`
	Category         string    `json:"category"`
	EntryURL         string    `json:"entryURL"`
	EntryBookmarkURL string    `json:"entryBookmarkURL"`
	CommentURL       string    `json:"commentURL"`
	Created          int64     `json:"created"`
	Comment          string    `json:"comment"`
	Image            string    `json:"image"`
	Star             StarTally `json:"star"`
}

// CreatedTime returns the creation time in Tokyo.
func (r Record) CreatedTime() time.Time {
	return time.UnixMilli(r.Created).In(Tokyo)
}

// Year is the partition year of the record.
func (r Record) Year() int {
	return PartitionYear(r.Created)
}

// Build converts a raw feed item into a Record with a zero star tally.
func Build(raw hatena.Bookmark, username string) (Record, error) {
	created, err := ParseCreated(raw.Created)
	if err != nil {
		return Record{}, fmt.Errorf("bookmark %s: %w", raw.LocationID, err)
	}

	eid := string(raw.LocationID)
	return Record{
		EID:              eid,
		Title:            raw.Entry.Title,
		BookmarkCount:    raw.Entry.TotalBookmarks,
		Category:         raw.Entry.Category.Path,
		EntryURL:         raw.URL,
		EntryBookmarkURL: EntryBookmarkURL(raw.URL),
		CommentURL:       CommentURL(username, created, eid),
		Created:          created.UnixMilli(),
		Comment:          raw.Comment,
		Image:            raw.Entry.Image,
	}, nil
}

// ParseCreated parses a feed timestamp and returns it in Tokyo. Timestamps
// without a zone are taken as UTC.
func ParseCreated(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(Tokyo), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// CommentURL is the permalink of a user's comment, used as the star lookup key.
func CommentURL(username string, created time.Time, eid string) string {
	return fmt.Sprintf("%s/%s/%s%s%s", bookmarkSite, username, CompactDate(created), EIDMarker, eid)
}

// EntryBookmarkURL is the page listing every bookmark of an entry.
func EntryBookmarkURL(entryURL string) string {
	return bookmarkSite + "/entry/s/" + ExcludeProtocol(entryURL)
}

// ExcludeProtocol strips a leading http:// or https://.
func ExcludeProtocol(url string) string {
	url = strings.TrimPrefix(url, "https://")
	return strings.TrimPrefix(url, "http://")
}

// ExtractEID returns everything after the #bookmark- marker. The second
// result is false when the marker is absent.
func ExtractEID(uri string) (string, bool) {
	idx := strings.Index(uri, EIDMarker)
	if idx < 0 {
		return "", false
	}
	return uri[idx+len(EIDMarker):], true
}

// FormatDate renders t as YYYY-MM-DD in Tokyo.
func FormatDate(t time.Time) string {
	return t.In(Tokyo).Format("2006-01-02")
}

// CompactDate renders t as YYYYMMDD in Tokyo.
func CompactDate(t time.Time) string {
	return t.In(Tokyo).Format("20060102")
}

// PartitionYear is the Tokyo calendar year of an epoch-millisecond timestamp.
func PartitionYear(createdMillis int64) int {
	return time.UnixMilli(createdMillis).In(Tokyo).Year()
}
