// Package testutil provides testing utilities for hatebu-galaxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PageSize mirrors the upstream bookmark feed page size.
const PageSize = 20

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// BookmarkFixture is one bookmark served by the mock bookmark feed.
type BookmarkFixture struct {
	EID            string
	Created        time.Time
	URL            string
	Title          string
	Comment        string
	Category       string
	Image          string
	TotalBookmarks int
}

// NamedStar is a star given by a named user.
type NamedStar struct {
	Quote string `json:"quote"`
	Name  string `json:"name"`
}

// ColoredFixture is a group of colored stars.
type ColoredFixture struct {
	Color string `json:"color"`
	Stars []any  `json:"stars"`
}

// StarFixture holds the stars of one bookmark comment. Items are ints or NamedStar.
type StarFixture struct {
	Stars   []any
	Colored []ColoredFixture
}

// UserFixture is served by the mock user info endpoint.
type UserFixture struct {
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	TotalBookmarks  int    `json:"total_bookmarks"`
	Private         bool   `json:"private"`
}

// MockHatena is a configurable mock of the bookmark, star and user feeds.
// A single server answers all three; point both base URLs at URL().
type MockHatena struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	bookmarks map[string][]BookmarkFixture
	stars     map[string]StarFixture
	users     map[string]UserFixture
	pageFails map[string]int
	starFails int

	// Tracking
	RequestCount      int
	StarRequestCount  int
	PageRequests      map[int]int
	LastRequestHeader http.Header
}

// NewMockHatena creates a new mock server.
func NewMockHatena() *MockHatena {
	mock := &MockHatena{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		bookmarks:    make(map[string][]BookmarkFixture),
		stars:        make(map[string]StarFixture),
		users:        make(map[string]UserFixture),
		pageFails:    make(map[string]int),
		PageRequests: make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/entry.json":
			mock.serveStars(w, r)
		case strings.HasPrefix(r.URL.Path, "/api/users/") && strings.HasSuffix(r.URL.Path, "/bookmarks"):
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/bookmarks")
			mock.serveBookmarks(w, r, name)
		case strings.HasPrefix(r.URL.Path, "/api/internal/cambridge/user/"):
			mock.serveUser(w, strings.TrimPrefix(r.URL.Path, "/api/internal/cambridge/user/"))
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockHatena) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockHatena) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockHatena) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.StarRequestCount = 0
	m.PageRequests = make(map[int]int)
	m.LastRequestHeader = nil
}

// SetHandler overrides the handler for a specific path.
func (m *MockHatena) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockHatena) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// AddUser registers a user and the bookmarks served for them, newest first.
func (m *MockHatena) AddUser(name string, bookmarks []BookmarkFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookmarks[name] = bookmarks
	m.users[name] = UserFixture{
		Name:            name,
		ProfileImageURL: fmt.Sprintf("https://cdn.profile-image.st-hatena.com/users/%s/profile.png", name),
		TotalBookmarks:  len(bookmarks),
	}
}

// SetStars configures the stars of the bookmark comment with the given eid.
func (m *MockHatena) SetStars(eid string, stars StarFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stars[eid] = stars
}

// FailPage makes the next n requests for a user's page answer with 500.
func (m *MockHatena) FailPage(name string, page, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageFails[pageKey(name, page)] = n
}

// FailStars makes the next n star requests answer with 500.
func (m *MockHatena) FailStars(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starFails = n
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockHatena) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetStarRequestCount returns the number of star feed requests.
func (m *MockHatena) GetStarRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StarRequestCount
}

// GetPageRequestCount returns how often a page number was requested.
func (m *MockHatena) GetPageRequestCount(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageRequests[page]
}

func pageKey(name string, page int) string {
	return name + "#" + strconv.Itoa(page)
}

func (m *MockHatena) serveBookmarks(w http.ResponseWriter, r *http.Request, name string) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	m.PageRequests[page]++
	failing := m.pageFails[pageKey(name, page)] > 0
	if failing {
		m.pageFails[pageKey(name, page)]--
	}
	all, known := m.bookmarks[name]
	m.mu.Unlock()

	if failing {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	items := make([]map[string]any, 0, end-start)
	for _, b := range all[start:end] {
		items = append(items, map[string]any{
			"location_id": b.EID,
			"created":     b.Created.UTC().Format(time.RFC3339),
			"url":         b.URL,
			"comment":     b.Comment,
			"entry": map[string]any{
				"title":           b.Title,
				"total_bookmarks": b.TotalBookmarks,
				"category":        map[string]string{"path": b.Category},
				"image":           b.Image,
			},
		})
	}

	pager := map[string]any{}
	if end < len(all) {
		pager["next"] = map[string]string{
			"label":     "next",
			"page_path": fmt.Sprintf("/%s/bookmark?page=%d", name, page+1),
			"xhr_path":  fmt.Sprintf("/api/users/%s/bookmarks?page=%d", name, page+1),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item":  map[string]any{"bookmarks": items},
		"pager": pager,
	})
}

func (m *MockHatena) serveStars(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.StarRequestCount++
	failing := m.starFails > 0
	if failing {
		m.starFails--
	}
	m.mu.Unlock()

	if failing {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	const marker = "#bookmark-"
	entries := []map[string]any{}

	m.mu.RLock()
	for _, uri := range r.URL.Query()["uri"] {
		idx := strings.Index(uri, marker)
		if idx < 0 {
			continue
		}
		fixture, ok := m.stars[uri[idx+len(marker):]]
		if !ok {
			continue
		}
		entry := map[string]any{"uri": uri, "stars": nonNil(fixture.Stars)}
		if len(fixture.Colored) > 0 {
			entry["colored_stars"] = fixture.Colored
		}
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (m *MockHatena) serveUser(w http.ResponseWriter, name string) {
	m.mu.RLock()
	user, ok := m.users[name]
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func nonNil(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// GenerateBookmarks returns n bookmarks, newest first, starting at newest and
// stepping back by step. EIDs are "1000", "1001", ... in that order.
func GenerateBookmarks(n int, newest time.Time, step time.Duration) []BookmarkFixture {
	out := make([]BookmarkFixture, 0, n)
	for i := 0; i < n; i++ {
		eid := strconv.Itoa(1000 + i)
		out = append(out, BookmarkFixture{
			EID:            eid,
			Created:        newest.Add(-time.Duration(i) * step),
			URL:            fmt.Sprintf("https://example.com/articles/%s", eid),
			Title:          fmt.Sprintf("Article %s", eid),
			Comment:        fmt.Sprintf("comment on %s", eid),
			Category:       "it",
			Image:          fmt.Sprintf("https://cdn-ak-scissors.b.st-hatena.com/image/%s.png", eid),
			TotalBookmarks: i + 1,
		})
	}
	return out
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers:    headers,
	}
}
