// Package stars fetches star data for bookmark records in batches and folds it
// into per-color tallies.
package stars

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"
	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for star aggregation.
var (
	starBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_star_batches_total",
		Help: "Star feed batches by result (ok, failed)",
	}, []string{"result"})

	starEntriesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_star_entries_skipped_total",
		Help: "Star entries or groups skipped by reason (malformed, no_eid, unknown_eid, unknown_color)",
	}, []string{"reason"})
)

// StarFetcher fetches star data for a batch of comment URIs.
type StarFetcher interface {
	FetchStars(ctx context.Context, uris []string) (*hatena.StarPage, error)
}

// StarFetcherFunc adapts a function to StarFetcher.
type StarFetcherFunc func(ctx context.Context, uris []string) (*hatena.StarPage, error)

// FetchStars calls f.
func (f StarFetcherFunc) FetchStars(ctx context.Context, uris []string) (*hatena.StarPage, error) {
	return f(ctx, uris)
}

// Config holds aggregator configuration.
type Config struct {
	// BatchSize is the number of URIs per star request.
	BatchSize int

	// MaxConcurrency limits parallel batches. Zero means unlimited.
	MaxConcurrency int

	// Timeout per batch request, retries included.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: hatena.BookmarksPerPage,
		Timeout:   30 * time.Second,
	}
}

// Stats summarizes one FillStars call.
type Stats struct {
	Batches       int
	FailedBatches int
	Entries       int
	Skipped       int
}

// Aggregator fills star tallies on bookmark records.
type Aggregator struct {
	fetcher StarFetcher
	config  Config
	logger  zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(fetcher StarFetcher, config Config) *Aggregator {
	if config.BatchSize <= 0 || config.BatchSize > hatena.BookmarksPerPage {
		config.BatchSize = hatena.BookmarksPerPage
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Aggregator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "stars").Logger(),
	}
}

type batchResult struct {
	uris []string
	page *hatena.StarPage
}

// FillStars fetches stars for every record and sets its tally in place.
//
// Batches run concurrently and fail independently: a failed or panicking batch
// leaves the tallies of its records untouched. Records of a successful batch are
// recounted from zero, so a repeated call never double counts.
func (a *Aggregator) FillStars(ctx context.Context, records []*bookmark.Record) Stats {
	var stats Stats
	if len(records) == 0 {
		return stats
	}

	// Step 1: Index records by eid and collect unique comment URIs
	byEID := make(map[string][]*bookmark.Record, len(records))
	uris := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		byEID[rec.EID] = append(byEID[rec.EID], rec)
		if !seen[rec.CommentURL] {
			seen[rec.CommentURL] = true
			uris = append(uris, rec.CommentURL)
		}
	}

	// Step 2: Fetch batches concurrently
	batches := split(uris, a.config.BatchSize)
	results := make([]*batchResult, len(batches))
	stats.Batches = len(batches)

	var eg errgroup.Group
	if a.config.MaxConcurrency > 0 {
		eg.SetLimit(a.config.MaxConcurrency)
	}

	for i, batch := range batches {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("star batch %d panicked: %v", i, r)
				}
			}()

			batchCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
			defer cancel()

			page, err := a.fetcher.FetchStars(batchCtx, batch)
			if err != nil {
				// Independent failure: the batch contributes nothing this pass.
				a.logger.Warn().
					Err(err).
					Int("batch", i).
					Int("uris", len(batch)).
					Msg("Star batch failed")
				return nil
			}
			if page == nil {
				page = &hatena.StarPage{}
			}
			results[i] = &batchResult{uris: batch, page: page}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		a.logger.Error().Err(err).Msg("Star batch panicked")
	}

	// Step 3: Fold results sequentially
	for _, res := range results {
		if res == nil {
			stats.FailedBatches++
			starBatchesTotal.WithLabelValues("failed").Inc()
			continue
		}
		starBatchesTotal.WithLabelValues("ok").Inc()

		if res.page.Malformed > 0 {
			stats.Skipped += res.page.Malformed
			starEntriesSkippedTotal.WithLabelValues("malformed").Add(float64(res.page.Malformed))
			a.logger.Warn().Int("entries", res.page.Malformed).Msg("Malformed star entries skipped")
		}

		for _, uri := range res.uris {
			if eid, ok := bookmark.ExtractEID(uri); ok {
				for _, rec := range byEID[eid] {
					rec.Star = bookmark.StarTally{}
				}
			}
		}

		for _, entry := range res.page.Entries {
			eid, ok := bookmark.ExtractEID(entry.URI)
			if !ok {
				stats.Skipped++
				starEntriesSkippedTotal.WithLabelValues("no_eid").Inc()
				a.logger.Debug().Str("uri", entry.URI).Msg("Star entry without eid skipped")
				continue
			}
			targets, known := byEID[eid]
			if !known {
				stats.Skipped++
				starEntriesSkippedTotal.WithLabelValues("unknown_eid").Inc()
				continue
			}

			stats.Entries++
			for _, rec := range targets {
				for _, tag := range Accumulate(&rec.Star, entry) {
					starEntriesSkippedTotal.WithLabelValues("unknown_color").Inc()
					a.logger.Warn().Str("eid", eid).Str("color", tag).Msg("Unknown star color skipped")
				}
			}
		}
	}

	a.logger.Debug().
		Int("records", len(records)).
		Int("batches", stats.Batches).
		Int("failed_batches", stats.FailedBatches).
		Int("entries", stats.Entries).
		Msg("Stars filled")

	return stats
}

// Accumulate adds the stars of one entry to a tally. Plain stars count as
// yellow; each colored group counts towards its color. Tags outside the five
// known colors are returned and otherwise ignored.
func Accumulate(tally *bookmark.StarTally, entry hatena.StarEntry) (unknown []string) {
	for _, item := range entry.Stars {
		tally.Add(bookmark.Yellow, item.Contribution())
	}

	for _, group := range entry.ColoredStars {
		color, ok := bookmark.ParseColor(group.Color)
		if !ok {
			unknown = append(unknown, group.Color)
			continue
		}
		for _, item := range group.Stars {
			tally.Add(color, item.Contribution())
		}
	}

	return unknown
}

func split(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
