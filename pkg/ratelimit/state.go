// Package ratelimit tracks upstream back-off signals and gates outbound
// requests. A 429 or 503 response opens a throttle window sized by its
// Retry-After header; while the window is open no request leaves the process.
// State is shared across instances via Redis when a client is configured.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyBlockedUntil = "hatena:throttle:blocked_until"
	RedisKeyReason       = "hatena:throttle:reason"
	RedisKeyLastUpdate   = "hatena:throttle:last_update"
)

// Window bounds.
const (
	// DefaultPenalty is used when a throttling response carries no usable Retry-After.
	DefaultPenalty = 30 * time.Second

	// MaxPenalty caps any single throttle window.
	MaxPenalty = 10 * time.Minute
)

// ThrottleState is the current upstream back-off state.
type ThrottleState struct {
	// BlockedUntil is the end of the current throttle window. Zero when none.
	BlockedUntil time.Time `json:"blocked_until"`

	// Reason is the HTTP status that opened the window.
	Reason int `json:"reason"`

	// LastUpdate is when the state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether the window is still open at now.
func (s *ThrottleState) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblock returns how long the window stays open.
// Returns 0 if the window has already passed.
func (s *ThrottleState) TimeUntilUnblock(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state data is older than the given duration.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsThrottlingStatus reports whether a response status asks clients to back off.
func IsThrottlingStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// ParseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. Returns 0 for empty, invalid or past values.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// penaltyFor returns the window length for a throttling response.
func penaltyFor(headers http.Header, now time.Time) time.Duration {
	d := ParseRetryAfter(headers.Get("Retry-After"), now)
	if d <= 0 {
		d = DefaultPenalty
	}
	if d > MaxPenalty {
		d = MaxPenalty
	}
	return d
}
