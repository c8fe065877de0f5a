package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long an object is served from the edge without
// consulting the origin.
const DefaultTTL = 10 * time.Minute

// Origin is the store the edge cache reads through to.
type Origin interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// EdgeCache serves origin objects through a Manager.
type EdgeCache struct {
	manager *Manager
	origin  Origin
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewEdgeCache creates an edge cache. A nil manager disables caching and
// every Get goes to the origin.
func NewEdgeCache(manager *Manager, origin Origin, ttl time.Duration) *EdgeCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EdgeCache{
		manager: manager,
		origin:  origin,
		ttl:     ttl,
		logger:  log.With().Str("component", "edge-cache").Logger(),
	}
}

// Get returns the object at key. Origin errors are returned unchanged, so
// callers can test for storage.ErrNotFound. Cache failures are logged and
// fall through to the origin.
func (c *EdgeCache) Get(ctx context.Context, key string) (*Entry, error) {
	if c.manager != nil {
		entry, err := c.manager.Get(ctx, key)
		switch {
		case err == nil:
			CacheHits.Inc()
			return entry, nil
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key).Msg("Edge cache read failed")
		}
	}
	CacheMisses.Inc()

	data, err := c.origin.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	entry := NewEntry(key, data, c.ttl)
	if c.manager != nil {
		if err := c.manager.Set(ctx, entry); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Edge cache write failed")
		}
	}
	return entry, nil
}

// Invalidate drops the cached copy of key so the next Get reads the origin.
func (c *EdgeCache) Invalidate(ctx context.Context, key string) error {
	if c.manager == nil {
		return nil
	}
	return c.manager.Delete(ctx, key)
}
