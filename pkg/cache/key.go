package cache

import "strings"

// KeyPrefix prefixes every edge cache entry in Redis.
const KeyPrefix = "galaxy:edge:"

// Key returns the Redis key caching the origin object objectKey. Leading and
// trailing slashes are ignored so "/u/2024.json" and "u/2024.json" share one
// entry.
func Key(objectKey string) string {
	return KeyPrefix + strings.Trim(objectKey, "/")
}
