package hatena

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/ratelimit"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig("hatebu-galaxy-test/1.0")
	cfg.BookmarkBaseURL = baseURL
	cfg.StarBaseURL = baseURL
	cfg.InitialBackoff = time.Millisecond

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("TestApp/1.0.0"),
			expectError: false,
		},
		{
			name:        "zero config with user agent gets defaults",
			config:      Config{UserAgent: "TestApp/1.0.0"},
			expectError: false,
		},
		{
			name:        "empty user agent",
			config:      Config{},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.config.BookmarkBaseURL != DefaultBookmarkBaseURL {
				t.Errorf("BookmarkBaseURL = %q, want %q", client.config.BookmarkBaseURL, DefaultBookmarkBaseURL)
			}
			if client.config.MaxAttempts != DefaultMaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", client.config.MaxAttempts, DefaultMaxAttempts)
			}
		})
	}
}

func TestFetchBookmarksPage(t *testing.T) {
	var gotPath, gotPage, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"item":{"bookmarks":[{
				"location_id":"4747184421499337007",
				"created":"2023-12-31T13:00:27Z",
				"url":"https://firststar-hateno.hatenablog.com/entry/2023/05/20/170926",
				"comment":"good",
				"entry":{"title":"Post","total_bookmarks":12,"category":{"title":"IT","path":"it"},"image":"https://example.com/i.png"}
			}]},
			"pager":{"next":{"label":"next","page_path":"/firststar_hateno/bookmark?page=3"}}
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	page, err := client.FetchBookmarksPage(context.Background(), "firststar_hateno", 2)
	if err != nil {
		t.Fatalf("FetchBookmarksPage() error = %v", err)
	}

	if gotPath != "/api/users/firststar_hateno/bookmarks" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPage != "2" {
		t.Errorf("page = %q, want 2", gotPage)
	}
	if gotUA != "hatebu-galaxy-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if !page.HasNext() {
		t.Error("HasNext() = false, want true")
	}
	if len(page.Item.Bookmarks) != 1 {
		t.Fatalf("len(Bookmarks) = %d, want 1", len(page.Item.Bookmarks))
	}

	b := page.Item.Bookmarks[0]
	if b.LocationID != "4747184421499337007" {
		t.Errorf("LocationID = %q", b.LocationID)
	}
	if b.Entry.Category.Path != "it" || b.Entry.TotalBookmarks != 12 {
		t.Errorf("Entry = %+v", b.Entry)
	}
}

func TestFetchBookmarksPage_InvalidInput(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")

	if _, err := client.FetchBookmarksPage(context.Background(), "../admin", 1); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("Expected ErrInvalidUsername, got %v", err)
	}
	if _, err := client.FetchBookmarksPage(context.Background(), "firststar_hateno", 0); err == nil {
		t.Error("Expected error for page 0")
	}
}

func TestFetchStars_RequestShape(t *testing.T) {
	var gotURIs []string
	var gotNoComments string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURIs = r.URL.Query()["uri"]
		gotNoComments = r.URL.Query().Get("no_comments")
		w.Write([]byte(`{"entries":[{"uri":"https://b.hatena.ne.jp/u/20240101#bookmark-1","stars":[1]}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	uris := []string{
		"https://b.hatena.ne.jp/u/20240101#bookmark-1",
		"https://b.hatena.ne.jp/u/20240101#bookmark-2",
	}

	page, err := client.FetchStars(context.Background(), uris)
	if err != nil {
		t.Fatalf("FetchStars() error = %v", err)
	}

	if len(gotURIs) != 2 || gotURIs[0] != uris[0] || gotURIs[1] != uris[1] {
		t.Errorf("uri params = %v, want %v", gotURIs, uris)
	}
	if gotNoComments != "1" {
		t.Errorf("no_comments = %q, want 1", gotNoComments)
	}
	if len(page.Entries) != 1 {
		t.Errorf("len(Entries) = %d, want 1", len(page.Entries))
	}
}

func TestFetchStars_BatchLimits(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")

	page, err := client.FetchStars(context.Background(), nil)
	if err != nil || len(page.Entries) != 0 {
		t.Errorf("empty batch: page = %+v, err = %v", page, err)
	}

	tooMany := make([]string, BookmarksPerPage+1)
	if _, err := client.FetchStars(context.Background(), tooMany); err == nil {
		t.Error("Expected error for oversized batch")
	}
}

func TestFetchUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/internal/cambridge/user/firststar_hateno" {
			w.Write([]byte(`{"user":{"name":"firststar_hateno","profile_image_url":"https://example.com/p.png","total_bookmarks":45,"private":false}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	info, err := client.FetchUserInfo(context.Background(), "firststar_hateno")
	if err != nil {
		t.Fatalf("FetchUserInfo() error = %v", err)
	}
	if info.TotalBookmarks != 45 || info.Name != "firststar_hateno" {
		t.Errorf("UserInfo = %+v", info)
	}

	if _, err := client.FetchUserInfo(context.Background(), "nobody_here"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"item":{"bookmarks":[]},"pager":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	page, err := client.FetchBookmarksPage(context.Background(), "firststar_hateno", 1)
	if err != nil {
		t.Fatalf("FetchBookmarksPage() error = %v", err)
	}
	if page.HasNext() {
		t.Error("HasNext() = true, want false")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestGetJSON_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchBookmarksPage(context.Background(), "firststar_hateno", 1)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.ErrorClass != ErrorClassClient || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("APIError = %+v", apiErr)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestGetJSON_DecodeErrorIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"item":`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchBookmarksPage(context.Background(), "firststar_hateno", 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", got, DefaultMaxAttempts)
	}
}

func TestGetJSON_ThrottleOpensOnTooManyRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tracker := ratelimit.NewTracker(nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))

	cfg := DefaultConfig("hatebu-galaxy-test/1.0")
	cfg.BookmarkBaseURL = server.URL
	cfg.InitialBackoff = time.Millisecond
	cfg.Throttle = tracker
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Backoff is capped at 60ms for rate limiting with a 1ms base, so the
	// remaining attempts hit the local throttle rather than the server.
	_, err = client.FetchBookmarksPage(context.Background(), "firststar_hateno", 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, ErrThrottled) {
		t.Errorf("Expected the final attempt to be throttled locally, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}

	allowed, wait, err := tracker.ShouldAllowRequest(context.Background())
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed || wait <= 0 {
		t.Errorf("tracker should be blocking, allowed = %v wait = %v", allowed, wait)
	}
}
