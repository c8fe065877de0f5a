// Package storage provides the object stores that hold year partitions,
// completion markers and first-bookmark records.
//
// Three ObjectStore backends exist:
//   - MemoryStore for tests and single-process runs
//   - RedisStore, objects as JSON strings plus a per-user index set
//   - S3Store, one S3 object per key
//
// Keys are slash separated and always start with the username, see keys.go.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat key/value store of byte blobs.
type ObjectStore interface {
	// Get returns the object at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object at key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// List returns all keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
