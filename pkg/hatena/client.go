// Package hatena provides the HTTP client for the Hatena Bookmark and Hatena
// Star feeds with bounded retry, error classification and upstream throttling.
package hatena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hatena_requests_total",
		Help: "Total upstream requests by feed and status",
	}, []string{"feed", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatena_request_duration_seconds",
		Help:    "Upstream request duration in seconds by feed",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"feed"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hatena_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Feed names used in metrics and logs.
const (
	FeedBookmarks = "bookmarks"
	FeedStars     = "stars"
	FeedUser      = "user"
)

// Default upstream endpoints.
const (
	DefaultBookmarkBaseURL = "https://b.hatena.ne.jp"
	DefaultStarBaseURL     = "https://s.hatena.ne.jp"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{1,31}$`)

// ValidUsername reports whether name is a syntactically valid Hatena ID.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// Throttle gates outbound requests on upstream back-off signals.
type Throttle interface {
	ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error)
	UpdateFromResponse(ctx context.Context, status int, headers http.Header) error
}

// Config holds the client configuration.
type Config struct {
	// BookmarkBaseURL serves the bookmark list and user info feeds.
	BookmarkBaseURL string

	// StarBaseURL serves the star feed.
	StarBaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per HTTP request. The bookmark feed can be slow.
	Timeout time.Duration

	// MaxAttempts per request including the first (default 3).
	MaxAttempts int

	// InitialBackoff scales the per-class backoff (default 1s).
	InitialBackoff time.Duration

	// Throttle is optional; nil disables request gating.
	Throttle Throttle

	// HTTPClient overrides the default client (Timeout is then ignored).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BookmarkBaseURL: DefaultBookmarkBaseURL,
		StarBaseURL:     DefaultStarBaseURL,
		UserAgent:       userAgent,
		Timeout:         30 * time.Second,
		MaxAttempts:     DefaultMaxAttempts,
		InitialBackoff:  1 * time.Second,
	}
}

// Client talks to the Hatena feeds.
type Client struct {
	httpClient *http.Client
	config     Config
	retrier    retrier
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BookmarkBaseURL == "" {
		cfg.BookmarkBaseURL = DefaultBookmarkBaseURL
	}
	if cfg.StarBaseURL == "" {
		cfg.StarBaseURL = DefaultStarBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 1 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.With().Str("component", "hatena-client").Logger()

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		retrier: retrier{
			maxAttempts: cfg.MaxAttempts,
			baseBackoff: cfg.InitialBackoff,
			logger:      logger,
		},
		logger: logger,
	}, nil
}

// FetchBookmarksPage fetches one page (1-based) of a user's public bookmarks.
func (c *Client) FetchBookmarksPage(ctx context.Context, username string, page int) (*BookmarksPage, error) {
	if !ValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}

	u := fmt.Sprintf("%s/api/users/%s/bookmarks?page=%d",
		c.config.BookmarkBaseURL, url.PathEscape(username), page)

	var out BookmarksPage
	if err := c.getJSON(ctx, FeedBookmarks, u, &out); err != nil {
		return nil, fmt.Errorf("fetch bookmarks page %d: %w", page, err)
	}
	return &out, nil
}

// StarRequestURL builds the star feed URL for a batch of comment URIs.
func (c *Client) StarRequestURL(uris []string) string {
	params := url.Values{}
	for _, uri := range uris {
		params.Add("uri", uri)
	}
	params.Set("no_comments", "1")
	return c.config.StarBaseURL + "/entry.json?" + params.Encode()
}

// FetchStars fetches star data for up to BookmarksPerPage comment URIs.
func (c *Client) FetchStars(ctx context.Context, uris []string) (*StarPage, error) {
	if len(uris) == 0 {
		return &StarPage{}, nil
	}
	if len(uris) > BookmarksPerPage {
		return nil, fmt.Errorf("star batch too large: %d > %d", len(uris), BookmarksPerPage)
	}

	var out StarPage
	if err := c.getJSON(ctx, FeedStars, c.StarRequestURL(uris), &out); err != nil {
		return nil, fmt.Errorf("fetch stars: %w", err)
	}
	return &out, nil
}

// FetchUserInfo fetches the profile of a bookmark user.
// Returns ErrUserNotFound if the upstream does not know the user.
func (c *Client) FetchUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	if !ValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	u := fmt.Sprintf("%s/api/internal/cambridge/user/%s",
		c.config.BookmarkBaseURL, url.PathEscape(username))

	var out userInfoResponse
	if err := c.getJSON(ctx, FeedUser, u, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return out.User, nil
}

// getJSON performs a GET with throttling, retry and metrics, and decodes a
// 2xx body into out.
func (c *Client) getJSON(ctx context.Context, feed, rawURL string, out any) error {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(feed).Observe(time.Since(startTime).Seconds())
	}()

	return c.retrier.do(ctx, func() error {
		return c.attempt(ctx, feed, rawURL, out)
	})
}

// attempt performs a single request.
func (c *Client) attempt(ctx context.Context, feed, rawURL string, out any) error {
	// Step 1: Check upstream throttle
	if c.config.Throttle != nil {
		allowed, wait, err := c.config.Throttle.ShouldAllowRequest(ctx)
		if err != nil {
			// Throttle state is advisory; a broken store must not stop gathering.
			c.logger.Warn().Err(err).Str("feed", feed).Msg("Throttle check failed")
		} else if !allowed {
			requestsTotal.WithLabelValues(feed, "throttled").Inc()
			return &APIError{
				Feed:       feed,
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    "blocked by local throttle",
				RetryAfter: wait,
				Err:        ErrThrottled,
			}
		}
	}

	// Step 2: Build request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &APIError{Feed: feed, ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("feed", feed).Str("url", rawURL).Msg("Executing upstream request")

	// Step 3: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := ErrorClassNetwork
		if ctx.Err() != nil {
			return fmt.Errorf("request %s: %w", feed, ctx.Err())
		}
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(feed, "network_error").Inc()
		return &APIError{Feed: feed, ErrorClass: errClass, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	// Step 4: Feed the throttle with the response
	if c.config.Throttle != nil {
		if err := c.config.Throttle.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update throttle state")
		}
	}

	requestsTotal.WithLabelValues(feed, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 5: Handle HTTP errors
	if errClass := classifyStatus(resp.StatusCode); errClass != "" {
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		c.logger.Warn().
			Str("feed", feed).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")

		return &APIError{
			Feed:       feed,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
			RetryAfter: ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	// Step 6: Decode
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &APIError{
			Feed:       feed,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "decode response",
			Err:        err,
		}
	}

	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
