// Package pagination provides parallel range fetching for the bookmark list feed.
//
// The feed has no total page count; each page only says whether a next page
// exists. FetchRange therefore requests a fixed window of pages at once and
// decides continuation afterwards, reading the flags in page order.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(hatenaClient, pagination.DefaultConfig())
//	result, err := fetcher.FetchRange(ctx, "firststar_hateno", 1, 5)
//	for _, raw := range result.Bookmarks() {
//		// ...
//	}
//
// The batch fetcher:
//   - Queues every page of the window up front
//   - Spawns one worker per page unless MaxConcurrency is set
//   - Keeps going when a page fails; the page is simply omitted
//   - Stops the continuation scan at the first failed page or the first
//     page without a next link, whichever comes first
//   - Drops pages that follow an explicit "no next page"
package pagination
