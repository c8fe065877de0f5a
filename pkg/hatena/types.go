package hatena

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BookmarksPerPage is the fixed page size of the bookmark list feed. The star
// feed accepts the same number of URIs per request.
const BookmarksPerPage = 20

// ID is an upstream identifier that may be encoded as a JSON string or number.
type ID string

// UnmarshalJSON accepts both "123" and 123.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// BookmarksPage is one page of a user's public bookmark list.
type BookmarksPage struct {
	Item  BookmarksItem `json:"item"`
	Pager Pager         `json:"pager"`
}

// BookmarksItem wraps the bookmark list of a page.
type BookmarksItem struct {
	Bookmarks []Bookmark `json:"bookmarks"`
}

// Pager carries the continuation marker of a page.
type Pager struct {
	Next *PageLink `json:"next,omitempty"`
}

// PageLink points to a neighbouring page.
type PageLink struct {
	Label    string `json:"label,omitempty"`
	PagePath string `json:"page_path,omitempty"`
	XHRPath  string `json:"xhr_path,omitempty"`
}

// HasNext reports whether the upstream advertised a following page.
func (p BookmarksPage) HasNext() bool {
	return p.Pager.Next != nil
}

// Bookmark is one raw item of the bookmark list feed. Only the fields the
// pipeline consumes are decoded.
type Bookmark struct {
	LocationID ID     `json:"location_id"`
	Created    string `json:"created"`
	URL        string `json:"url"`
	Comment    string `json:"comment"`
	Entry      Entry  `json:"entry"`
}

// Entry is the bookmarked page as seen by the bookmark service.
type Entry struct {
	Title          string   `json:"title"`
	TotalBookmarks int      `json:"total_bookmarks"`
	Category       Category `json:"category"`
	Image          string   `json:"image"`
}

// Category of an entry. Path is the short machine name ("it", "social").
type Category struct {
	Title string `json:"title,omitempty"`
	Path  string `json:"path"`
}

// StarPage is the response of the star feed.
type StarPage struct {
	Entries []StarEntry `json:"entries"`

	// Malformed counts entries dropped while decoding.
	Malformed int `json:"-"`
}

// UnmarshalJSON decodes entries one by one. An entry that fails to decode is
// dropped and counted in Malformed; the rest of the page is kept.
func (p *StarPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("star page: %w", err)
	}

	p.Entries = make([]StarEntry, 0, len(raw.Entries))
	p.Malformed = 0
	for _, msg := range raw.Entries {
		var entry StarEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			p.Malformed++
			continue
		}
		p.Entries = append(p.Entries, entry)
	}
	return nil
}

// StarEntry holds the stars attached to one bookmark comment URI.
type StarEntry struct {
	URI          string         `json:"uri"`
	Stars        []StarItem     `json:"stars"`
	ColoredStars []ColoredStars `json:"colored_stars,omitempty"`
}

// ColoredStars is a group of stars sharing one color tag.
type ColoredStars struct {
	Color string     `json:"color"`
	Stars []StarItem `json:"stars"`
}

type starItemKind uint8

const (
	starNumeric starItemKind = iota
	starNamed
)

// StarItem is either a bare count or a named star given by one user.
type StarItem struct {
	kind  starItemKind
	count int
	Quote string
	Name  string
}

// Numeric returns a StarItem standing for n anonymous stars.
func Numeric(n int) StarItem {
	return StarItem{kind: starNumeric, count: n}
}

// Named returns a StarItem standing for one star given by name.
func Named(quote, name string) StarItem {
	return StarItem{kind: starNamed, Quote: quote, Name: name}
}

// IsNumeric reports whether the item is a bare count.
func (s StarItem) IsNumeric() bool {
	return s.kind == starNumeric
}

// Contribution is the number of stars the item adds to a tally: n for a
// numeric item, exactly one for a named item. Negative counts contribute zero.
func (s StarItem) Contribution() int {
	if s.kind == starNamed {
		return 1
	}
	if s.count < 0 {
		return 0
	}
	return s.count
}

type namedStar struct {
	Quote string `json:"quote"`
	Name  string `json:"name"`
}

// UnmarshalJSON decodes a JSON number, a quoted number or a {quote, name}
// object. null counts as zero stars.
func (s *StarItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("star item: empty value")
	}
	if bytes.Equal(data, []byte("null")) {
		*s = Numeric(0)
		return nil
	}
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("star item: %w", err)
		}
		data = []byte(strings.TrimSpace(unquoted))
		if len(data) == 0 || data[0] == '{' {
			return fmt.Errorf("star item: unsupported value %q", unquoted)
		}
	}

	if data[0] == '{' {
		var named namedStar
		if err := json.Unmarshal(data, &named); err != nil {
			return fmt.Errorf("star item: %w", err)
		}
		*s = Named(named.Quote, named.Name)
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("star item: unsupported value %s", data)
	}
	*s = Numeric(int(n))
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (s StarItem) MarshalJSON() ([]byte, error) {
	if s.kind == starNamed {
		return json.Marshal(namedStar{Quote: s.Quote, Name: s.Name})
	}
	return []byte(strconv.Itoa(s.count)), nil
}

// UserInfo describes a bookmark user.
type UserInfo struct {
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	TotalBookmarks  int    `json:"total_bookmarks"`
	Private         bool   `json:"private"`
}

type userInfoResponse struct {
	User *UserInfo `json:"user"`
}
