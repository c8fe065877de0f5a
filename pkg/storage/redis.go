package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefixObject prefixes every stored object.
	KeyPrefixObject = "galaxy:obj:"
	// KeyPrefixIndex prefixes the per-user set of object keys.
	KeyPrefixIndex = "galaxy:index:"
)

// ObjectRedisKey returns the Redis key holding an object.
func ObjectRedisKey(key string) string {
	return KeyPrefixObject + key
}

// IndexRedisKey returns the Redis set indexing a user's objects.
func IndexRedisKey(owner string) string {
	return KeyPrefixIndex + owner
}

// RedisStore is an ObjectStore backed by Redis. Objects carry no TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements ObjectStore.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, ObjectRedisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Put implements ObjectStore. The object and its index entry are written in
// one pipeline.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ObjectRedisKey(key), data, 0)
	pipe.SAdd(ctx, IndexRedisKey(Owner(key)), key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// List implements ObjectStore. Only prefixes that include the owner segment
// are answered from the index; anything else returns no keys.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	owner := Owner(prefix)
	if owner == "" {
		return nil, nil
	}

	members, err := s.client.SMembers(ctx, IndexRedisKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(members))
	for _, k := range members {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
