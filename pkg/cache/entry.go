package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is a cached copy of one origin object.
type Entry struct {
	// Key is the object key at the origin
	Key string `json:"key"`

	// Data is the object body
	Data []byte `json:"data"`

	// ETag is a strong validator derived from Data
	ETag string `json:"etag"`

	// CachedAt is when the object was read from the origin
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry stops being served
	Expires time.Time `json:"expires"`
}

// NewEntry builds an entry for data read now, fresh for ttl.
func NewEntry(key string, data []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Key:      key,
		Data:     data,
		ETag:     ComputeETag(data),
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// ComputeETag returns a quoted strong ETag for data.
func ComputeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
