package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"
	"github.com/Sternrassler/hatebu-galaxy/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_partition_merges_total",
		Help: "Partition merges by result (ok, read_failed, write_failed)",
	}, []string{"result"})

	readRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_partition_read_retries_total",
		Help: "Partition reads retried after a non-NotFound error",
	})

	recordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_partition_records_written_total",
		Help: "Records contained in written partitions",
	})

	markersWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_partition_markers_written_total",
		Help: "Completion markers written",
	})
)

// Marker is the body of the completion sentinel.
type Marker struct {
	CompletedAt time.Time `json:"completedAt"`
}

// Invalidator drops cached copies of an object after it was rewritten.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Config holds partition store configuration.
type Config struct {
	// ReadAttempts bounds the reads of an existing partition before a merge.
	ReadAttempts int
	// ReadBackoff is the wait after the first failed read, doubled after each.
	ReadBackoff time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ReadAttempts: 3,
		ReadBackoff:  200 * time.Millisecond,
	}
}

// Store persists partitions and markers in an object store.
type Store struct {
	objects     storage.ObjectStore
	invalidator Invalidator
	config      Config
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStore creates a partition store. Reads always go to objects directly,
// never through an edge cache.
func NewStore(objects storage.ObjectStore, config Config) *Store {
	if config.ReadAttempts < 1 {
		config.ReadAttempts = 1
	}
	if config.ReadBackoff <= 0 {
		config.ReadBackoff = DefaultConfig().ReadBackoff
	}

	return &Store{
		objects: objects,
		config:  config,
		logger:  log.With().Str("component", "partition").Logger(),
		now:     time.Now,
	}
}

// SetInvalidator registers a cache to notify after every write.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// Load reads one partition. A missing partition returns storage.ErrNotFound.
func (s *Store) Load(ctx context.Context, username string, year int) (Partition, error) {
	key := storage.PartitionKey(username, year)

	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return Partition{}, err
	}

	var p Partition
	if err := json.Unmarshal(data, &p); err != nil {
		return Partition{}, fmt.Errorf("decode partition %s: %w", key, err)
	}
	return p, nil
}

// List returns the partition keys of a user in lexical order. Other objects
// under the user prefix, such as the completion marker, are left out.
func (s *Store) List(ctx context.Context, username string) ([]string, error) {
	keys, err := s.objects.List(ctx, storage.UserPrefix(username))
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", username, err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, _, err := storage.ParsePartitionKey(k); err == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

// Years returns the partition years of a user in ascending order.
func (s *Store) Years(ctx context.Context, username string) ([]int, error) {
	keys, err := s.List(ctx, username)
	if err != nil {
		return nil, err
	}

	years := make([]int, 0, len(keys))
	for _, k := range keys {
		_, year, _ := storage.ParsePartitionKey(k)
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// MergeAndPersist merges records into the stored partition of year and
// writes the result, even when nothing changed.
//
// A missing partition starts empty. Any other read failure is retried up to
// ReadAttempts; if the partition still cannot be read nothing is written, so
// stored data is never replaced by a partial partition.
func (s *Store) MergeAndPersist(ctx context.Context, username string, year int, records []bookmark.Record) error {
	key := storage.PartitionKey(username, year)
	logger := s.logger.With().Str("username", username).Int("year", year).Logger()

	// Step 1: Read existing partition with bounded retry
	existing, err := s.loadForMerge(ctx, username, year, logger)
	if err != nil {
		mergesTotal.WithLabelValues("read_failed").Inc()
		return fmt.Errorf("read partition %s: %w", key, err)
	}

	// Step 2: Merge
	merged := Partition{Bookmarks: Merge(existing.Bookmarks, records)}

	// Step 3: Write
	data, err := json.Marshal(merged)
	if err != nil {
		mergesTotal.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("encode partition %s: %w", key, err)
	}
	if err := s.objects.Put(ctx, key, data); err != nil {
		mergesTotal.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("write partition %s: %w", key, err)
	}

	mergesTotal.WithLabelValues("ok").Inc()
	recordsWrittenTotal.Add(float64(len(merged.Bookmarks)))
	s.invalidate(ctx, key)

	logger.Debug().
		Int("existing", len(existing.Bookmarks)).
		Int("incoming", len(records)).
		Int("merged", len(merged.Bookmarks)).
		Msg("Partition persisted")

	return nil
}

func (s *Store) loadForMerge(ctx context.Context, username string, year int, logger zerolog.Logger) (Partition, error) {
	wait := s.config.ReadBackoff

	var lastErr error
	for attempt := 1; attempt <= s.config.ReadAttempts; attempt++ {
		p, err := s.Load(ctx, username, year)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return Partition{}, nil
		}
		lastErr = err

		if attempt == s.config.ReadAttempts {
			break
		}

		readRetriesTotal.Inc()
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Partition read failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Partition{}, fmt.Errorf("read retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}

	return Partition{}, lastErr
}

// IsComplete reports whether the user's completion marker exists.
func (s *Store) IsComplete(ctx context.Context, username string) (bool, error) {
	keys, err := s.objects.List(ctx, storage.UserPrefix(username))
	if err != nil {
		return false, fmt.Errorf("list objects of %s: %w", username, err)
	}

	marker := storage.CompletedKey(username)
	for _, k := range keys {
		if k == marker {
			return true, nil
		}
	}
	return false, nil
}

// MarkComplete writes the user's completion marker.
func (s *Store) MarkComplete(ctx context.Context, username string) error {
	key := storage.CompletedKey(username)

	data, err := json.Marshal(Marker{CompletedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := s.objects.Put(ctx, key, data); err != nil {
		return fmt.Errorf("write marker %s: %w", key, err)
	}

	markersWrittenTotal.Inc()
	s.invalidate(ctx, key)
	s.logger.Info().Str("username", username).Msg("History marked complete")
	return nil
}

// CompletedAt returns when the user's history was last marked complete.
// Returns storage.ErrNotFound when it never was.
func (s *Store) CompletedAt(ctx context.Context, username string) (time.Time, error) {
	data, err := s.objects.Get(ctx, storage.CompletedKey(username))
	if err != nil {
		return time.Time{}, err
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return time.Time{}, fmt.Errorf("decode marker of %s: %w", username, err)
	}
	return m.CompletedAt, nil
}

func (s *Store) invalidate(ctx context.Context, key string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache invalidation failed")
	}
}
