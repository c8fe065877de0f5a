package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hatena_throttle_blocks_total",
		Help: "Total number of requests refused while the upstream asked us to back off",
	})

	throttleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hatena_throttle_events_total",
		Help: "Total number of throttling responses that opened a throttle window",
	})
)

// Tracker records upstream back-off windows and gates requests.
// With a nil Redis client the state is kept in process.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local ThrottleState
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the current throttle state.
// Returns an open (unblocked) state if nothing was recorded.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	blockedUntil, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err == redis.Nil {
		return &ThrottleState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	reason, err := t.redis.Get(ctx, RedisKeyReason).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reason: %w", err)
	}

	var lastUpdate time.Time
	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &ThrottleState{
		BlockedUntil: time.UnixMilli(blockedUntil),
		Reason:       reason,
		LastUpdate:   lastUpdate,
	}, nil
}

// UpdateFromResponse opens or extends the throttle window when status is
// 429 or 503. Other statuses leave the state untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	if !IsThrottlingStatus(status) {
		return nil
	}

	now := t.now()
	penalty := penaltyFor(headers, now)
	state := ThrottleState{
		BlockedUntil: now.Add(penalty),
		Reason:       status,
		LastUpdate:   now,
	}

	current, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get throttle state: %w", err)
	}
	// Never shorten a window another instance opened.
	if current.BlockedUntil.After(state.BlockedUntil) {
		return nil
	}

	if err := t.store(ctx, state, penalty); err != nil {
		return err
	}

	throttleEventsTotal.Inc()
	t.logger.Warn().
		Int("status", status).
		Dur("penalty", penalty).
		Time("blocked_until", state.BlockedUntil).
		Msg("Upstream throttling - outbound requests paused")

	return nil
}

func (t *Tracker) store(ctx context.Context, state ThrottleState, ttl time.Duration) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys expire with the window so a stale block never outlives it.
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyBlockedUntil, state.BlockedUntil.UnixMilli(), ttl)
	pipe.Set(ctx, RedisKeyReason, state.Reason, ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest reports whether a request may leave now. When blocked,
// the returned duration is the remaining window.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get throttle state: %w", err)
	}

	now := t.now()
	if state.IsBlocked(now) {
		wait := state.TimeUntilUnblock(now)
		t.logger.Debug().
			Int("reason", state.Reason).
			Dur("wait_duration", wait).
			Msg("Upstream throttle window open - blocking request")

		throttleBlocksTotal.Inc()
		return false, wait, nil
	}

	return true, 0, nil
}

// Reset clears any recorded window.
func (t *Tracker) Reset(ctx context.Context) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = ThrottleState{}
		t.mu.Unlock()
		return nil
	}
	if err := t.redis.Del(ctx, RedisKeyBlockedUntil, RedisKeyReason, RedisKeyLastUpdate).Err(); err != nil {
		return fmt.Errorf("reset throttle state: %w", err)
	}
	return nil
}
