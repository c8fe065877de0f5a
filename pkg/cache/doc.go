// Package cache provides the edge cache that fronts the object store on the
// API read paths.
//
// Objects are served from Redis while their entry is fresh and read through
// from the origin store otherwise. Entries carry a content ETag so HTTP
// clients can revalidate with If-None-Match and get 304 Not Modified.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//	edge := cache.NewEdgeCache(manager, objectStore, 10*time.Minute)
//
//	entry, err := edge.Get(ctx, "firststar_hateno/2024.json")
//	if errors.Is(err, storage.ErrNotFound) {
//		// object does not exist at the origin
//	}
//	cache.WriteEntry(w, r, entry)
//
// A nil manager turns the edge cache into a pass-through, which is what the
// memory storage backend runs with.
//
// # Metrics
//
//   - galaxy_edge_cache_hits_total
//   - galaxy_edge_cache_misses_total
//   - galaxy_edge_cache_not_modified_total
//   - galaxy_edge_cache_errors_total{operation}
package cache
