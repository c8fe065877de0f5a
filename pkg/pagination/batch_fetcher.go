package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "galaxy_pages_fetched_total",
	Help: "Bookmark feed pages fetched by result (ok, failed, discarded)",
}, []string{"result"})

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// Zero means one worker per requested page.
	MaxConcurrency int
	// Timeout per page fetch, retries included
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 0,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches a single page of a user's bookmark list
type PageFetcher interface {
	FetchBookmarksPage(ctx context.Context, username string, page int) (*hatena.BookmarksPage, error)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Bookmarks  []hatena.Bookmark
	HasNext    bool
	Error      error
}

// RangeResult is the outcome of one FetchRange call.
type RangeResult struct {
	// Pages holds the successful pages in ascending order, cut after the first
	// page that reported no continuation.
	Pages []PageResult

	// HasNextPage is the continuation flag read in ascending page order.
	HasNextPage bool

	// Conclusive is false when a failed page ended the scan. HasNextPage is
	// then the flag of the last page before the gap (or false if there was none)
	// and must not be taken as proof that the history is exhausted.
	Conclusive bool

	// Failed lists page numbers that failed before the scan stopped.
	Failed []int
}

// Bookmarks flattens the raw items of all returned pages in page order.
func (r RangeResult) Bookmarks() []hatena.Bookmark {
	var n int
	for _, p := range r.Pages {
		n += len(p.Bookmarks)
	}
	out := make([]hatena.Bookmark, 0, n)
	for _, p := range r.Pages {
		out = append(out, p.Bookmarks...)
	}
	return out
}

// BatchFetcher handles parallel fetching of a page range
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// FetchRange fetches pages [startPage, startPage+pageCount) concurrently.
// A failed page is logged and omitted; its siblings are unaffected. The only
// errors returned are for invalid arguments.
func (bf *BatchFetcher) FetchRange(ctx context.Context, username string, startPage, pageCount int) (RangeResult, error) {
	if startPage < 1 {
		return RangeResult{}, fmt.Errorf("start page must be >= 1 (got %d)", startPage)
	}
	if pageCount < 1 {
		return RangeResult{}, fmt.Errorf("page count must be >= 1 (got %d)", pageCount)
	}

	start := time.Now()
	logger := bf.logger.With().Str("username", username).Logger()

	workers := bf.config.MaxConcurrency
	if workers == 0 || workers > pageCount {
		workers = pageCount
	}

	logger.Debug().
		Int("start_page", startPage).
		Int("page_count", pageCount).
		Int("workers", workers).
		Msg("Starting parallel page fetch")

	// Fill page queue
	pageQueue := make(chan int, pageCount)
	for page := startPage; page < startPage+pageCount; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan PageResult, pageCount)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, username, pageQueue, pageResults, &wg)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	// Collect results
	results := make([]PageResult, 0, pageCount)
	for result := range pageResults {
		if result.Error != nil {
			pagesFetchedTotal.WithLabelValues("failed").Inc()
			logger.Warn().
				Err(result.Error).
				Int("page", result.PageNumber).
				Msg("Page fetch failed")
		} else {
			pagesFetchedTotal.WithLabelValues("ok").Inc()
		}
		results = append(results, result)
	}

	out := Summarize(results)
	if discarded := countDiscarded(results, out); discarded > 0 {
		pagesFetchedTotal.WithLabelValues("discarded").Add(float64(discarded))
	}

	logger.Info().
		Int("start_page", startPage).
		Int("pages", len(out.Pages)).
		Ints("failed", out.Failed).
		Bool("has_next_page", out.HasNextPage).
		Bool("conclusive", out.Conclusive).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return out, nil
}

// Summarize orders page results and derives the continuation flag. Pages are
// consulted strictly in ascending order: the first explicit "no next page"
// ends the range, and a failed page ends the scan without deciding it.
func Summarize(results []PageResult) RangeResult {
	ordered := make([]PageResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	out := RangeResult{Conclusive: true}
	scanning := true

	for _, r := range ordered {
		if r.Error != nil {
			out.Failed = append(out.Failed, r.PageNumber)
			if scanning {
				scanning = false
				out.Conclusive = false
			}
			continue
		}

		out.Pages = append(out.Pages, r)
		if scanning {
			out.HasNextPage = r.HasNext
		}
		if !r.HasNext {
			break
		}
	}

	return out
}

func countDiscarded(results []PageResult, out RangeResult) int {
	var ok int
	for _, r := range results {
		if r.Error == nil {
			ok++
		}
	}
	return ok - len(out.Pages)
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, username string, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for pageNum := range pageQueue {
		// Shutdown: report remaining pages as failed without fetching
		if err := ctx.Err(); err != nil {
			results <- PageResult{PageNumber: pageNum, Error: err}
			continue
		}

		results <- bf.fetchPage(ctx, username, pageNum)
	}
}

// fetchPage fetches one page. A panic in the fetcher is reported as a failed
// page so the remaining pages and the caller are unaffected.
func (bf *BatchFetcher) fetchPage(ctx context.Context, username string, pageNum int) (res PageResult) {
	defer func() {
		if r := recover(); r != nil {
			bf.logger.Error().
				Int("page", pageNum).
				Interface("panic", r).
				Msg("Page fetch panicked")
			res = PageResult{PageNumber: pageNum, Error: fmt.Errorf("page %d panicked: %v", pageNum, r)}
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	page, err := bf.fetcher.FetchBookmarksPage(pageCtx, username, pageNum)
	if err != nil {
		return PageResult{PageNumber: pageNum, Error: err}
	}

	return PageResult{
		PageNumber: pageNum,
		Bookmarks:  page.Item.Bookmarks,
		HasNext:    page.HasNext(),
	}
}
