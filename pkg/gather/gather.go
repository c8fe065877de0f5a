// Package gather runs harvest passes: fetch a page window of a user's
// bookmark history, attach star tallies, persist per-year partitions and
// mark the history complete once its end is reached.
package gather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"
	"github.com/Sternrassler/hatebu-galaxy/pkg/logging"
	"github.com/Sternrassler/hatebu-galaxy/pkg/pagination"
	"github.com/Sternrassler/hatebu-galaxy/pkg/stars"
	"github.com/Sternrassler/hatebu-galaxy/pkg/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for harvest passes.
var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_gather_passes_total",
		Help: "Gather passes by result (ok, partial, panic)",
	}, []string{"result"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "galaxy_gather_duration_seconds",
		Help:    "Gather pass duration including the startup delay",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_gather_records_total",
		Help: "Records returned by gather passes",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_gather_failures_total",
		Help: "Contained gather failures by stage (fetch, build, persist, complete, first_bookmark)",
	}, []string{"stage"})

	completionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_gather_completions_total",
		Help: "Passes that reached the end of a user's history",
	})
)

// Partitions is the partition storage used by a Gatherer.
type Partitions interface {
	MergeAndPersist(ctx context.Context, username string, year int, records []bookmark.Record) error
	IsComplete(ctx context.Context, username string) (bool, error)
	MarkComplete(ctx context.Context, username string) error
	List(ctx context.Context, username string) ([]string, error)
}

// Upstream is the feed client used by a Gatherer.
type Upstream interface {
	pagination.PageFetcher
	stars.StarFetcher
}

// Config holds gatherer configuration.
type Config struct {
	// StartupDelay is waited before every pass.
	StartupDelay time.Duration

	// PageChunk is the page window used by Backfill and as API default.
	PageChunk int

	// TopUpPages is the leading window re-fetched by TopUp.
	TopUpPages int

	Pagination pagination.Config
	Stars      stars.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StartupDelay: time.Second,
		PageChunk:    5,
		TopUpPages:   1,
		Pagination:   pagination.DefaultConfig(),
		Stars:        stars.DefaultConfig(),
	}
}

// Result is what one pass returns to its caller.
type Result struct {
	Records     []bookmark.Record `json:"bookmarks"`
	HasNextPage bool              `json:"hasNextPage"`

	// Conclusive is false when the page scan stopped at a failed page, the
	// first one included. HasNextPage=false is only final when this is true.
	Conclusive bool `json:"conclusive"`

	// SessionID identifies the pass in logs.
	SessionID string `json:"-"`
	// Completed is true when this pass wrote the completion marker.
	Completed bool `json:"-"`
}

// Gatherer runs harvest passes.
type Gatherer struct {
	pages      *pagination.BatchFetcher
	stars      *stars.Aggregator
	partitions Partitions
	first      storage.FirstBookmarkStore
	config     Config
	logger     zerolog.Logger

	mu     sync.Mutex
	active map[string]int
}

// New creates a gatherer. first may be nil to skip first-bookmark tracking.
func New(upstream Upstream, partitions Partitions, first storage.FirstBookmarkStore, config Config) *Gatherer {
	if config.StartupDelay < 0 {
		config.StartupDelay = 0
	}
	if config.PageChunk < 1 {
		config.PageChunk = DefaultConfig().PageChunk
	}
	if config.TopUpPages < 1 {
		config.TopUpPages = DefaultConfig().TopUpPages
	}

	return &Gatherer{
		pages:      pagination.NewBatchFetcher(upstream, config.Pagination),
		stars:      stars.NewAggregator(upstream, config.Stars),
		partitions: partitions,
		first:      first,
		config:     config,
		logger:     logging.NewLogger("gather"),
		active:     make(map[string]int),
	}
}

// PageChunk returns the configured page window.
func (g *Gatherer) PageChunk() int {
	return g.config.PageChunk
}

// Gather runs one pass over pages [startPage, startPage+pageCount).
//
// It never fails: errors and panics past the startup delay are logged and
// counted, and the records accumulated so far are returned together with the
// best-known continuation flag. The completion marker is only written when
// the page scan reached an explicit end without gaps and every touched
// partition was persisted.
func (g *Gatherer) Gather(ctx context.Context, username string, startPage, pageCount int) Result {
	start := time.Now()
	s := newSession(uuid.NewString(), username)
	logger := logging.ForUser(g.logger, username).With().Str("session_id", s.id).Logger()

	g.enter(username)
	defer g.leave(username)

	logger.Info().
		Int("start_page", startPage).
		Int("page_count", pageCount).
		Msg("Gather pass started")

	// Step 1: Startup delay
	if err := sleep(ctx, g.config.StartupDelay); err != nil {
		logger.Warn().Err(err).Msg("Gather pass cancelled during startup delay")
		passesTotal.WithLabelValues("partial").Inc()
		return Result{SessionID: s.id}
	}

	result := "ok"
	err := g.run(ctx, s, startPage, pageCount, logger)
	if err != nil {
		result = "partial"
		var pe *panicError
		if errors.As(err, &pe) {
			result = "panic"
		}
		logger.Error().Err(err).Msg("Gather pass failed, returning partial result")
	}
	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(time.Since(start).Seconds())

	out := Result{
		Records:     s.flatten(),
		HasNextPage: s.hasNextPage,
		Conclusive:  s.conclusive,
		SessionID:   s.id,
		Completed:   s.persisted && !s.hasNextPage && s.conclusive && err == nil,
	}
	recordsTotal.Add(float64(len(out.Records)))

	logger.Info().
		Int("records", len(out.Records)).
		Int("rejected", s.rejected).
		Int("duplicates", s.duplicates).
		Bool("has_next_page", out.HasNextPage).
		Bool("conclusive", out.Conclusive).
		Bool("completed", out.Completed).
		Dur("duration", time.Since(start)).
		Msg("Gather pass finished")

	return out
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// run executes the stages after the startup delay. A panic in any stage is
// turned into an error; the session keeps what was accumulated.
func (g *Gatherer) run(ctx context.Context, s *session, startPage, pageCount int, logger zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	// Step 2: Fetch page window
	fetched, err := g.pages.FetchRange(ctx, s.username, startPage, pageCount)
	if err != nil {
		failuresTotal.WithLabelValues("fetch").Inc()
		return fmt.Errorf("fetch pages: %w", err)
	}
	s.hasNextPage = fetched.HasNextPage
	s.conclusive = fetched.Conclusive

	// Step 3: Build records and bucket by year
	for _, raw := range fetched.Bookmarks() {
		rec, err := bookmark.Build(raw, s.username)
		if err != nil {
			s.rejected++
			failuresTotal.WithLabelValues("build").Inc()
			logger.Warn().Err(err).Str("eid", string(raw.LocationID)).Msg("Bookmark rejected")
			continue
		}
		s.add(rec)
	}

	// Step 4: Star tallies over all years at once
	stats := g.stars.FillStars(ctx, s.pointers())
	if stats.FailedBatches > 0 {
		logger.Warn().
			Int("failed_batches", stats.FailedBatches).
			Int("batches", stats.Batches).
			Msg("Some star batches failed")
	}

	// Step 5: Persist touched partitions
	var persistErrs []error
	for _, year := range s.years() {
		if err := g.partitions.MergeAndPersist(ctx, s.username, year, s.buckets[year]); err != nil {
			failuresTotal.WithLabelValues("persist").Inc()
			logger.Error().Err(err).Int("year", year).Msg("Partition not persisted")
			persistErrs = append(persistErrs, err)
		}
	}
	if len(persistErrs) > 0 {
		return errors.Join(persistErrs...)
	}
	s.persisted = true

	// Step 6: Completion
	if s.hasNextPage || !s.conclusive {
		return nil
	}
	if err := g.partitions.MarkComplete(ctx, s.username); err != nil {
		failuresTotal.WithLabelValues("complete").Inc()
		return fmt.Errorf("mark complete: %w", err)
	}
	completionsTotal.Inc()

	if earliest := s.earliest(); g.first != nil && earliest != 0 {
		fb := storage.FirstBookmark{Username: s.username, Created: earliest}
		if err := g.first.Record(ctx, fb); err != nil {
			failuresTotal.WithLabelValues("first_bookmark").Inc()
			logger.Warn().Err(err).Int64("created", earliest).Msg("First bookmark not recorded")
		}
	}
	return nil
}

// TopUp re-fetches the leading page window of a user.
func (g *Gatherer) TopUp(ctx context.Context, username string) Result {
	return g.Gather(ctx, username, 1, g.config.TopUpPages)
}

// Backfill runs consecutive passes from startPage until the history end is
// reached, ctx is done or maxPasses passes ran (0 means no limit). It returns
// the number of the next page to fetch and an error if it stopped before a
// pass completed the history.
func (g *Gatherer) Backfill(ctx context.Context, username string, startPage, maxPasses int) (int, error) {
	page := startPage
	for pass := 1; maxPasses == 0 || pass <= maxPasses; pass++ {
		res := g.Gather(ctx, username, page, g.config.PageChunk)
		if ctx.Err() != nil {
			return page, ctx.Err()
		}
		if !res.HasNextPage {
			if res.Completed {
				return page + g.config.PageChunk, nil
			}
			return page, fmt.Errorf("backfill of %s stopped inconclusively at page %d", username, page)
		}
		page += g.config.PageChunk
	}
	return page, fmt.Errorf("backfill of %s reached %d passes at page %d", username, maxPasses, page)
}

func (g *Gatherer) enter(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[username]++
}

func (g *Gatherer) leave(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[username]--
	if g.active[username] <= 0 {
		delete(g.active, username)
	}
}

func (g *Gatherer) running(username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[username] > 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
