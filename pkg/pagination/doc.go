// Package pagination drives repeated page fetches for a listing query and
// merges the pages into a deduplicated result set.
//
// The upstream API offers no total count and no cursor, so the engine infers
// the end of the data: a page holding exactly PageSize records means another
// page may follow, anything shorter (including an empty page) ends the run.
// When the last page happens to be full the engine issues one extra request
// that comes back empty; the merge is idempotent so this is harmless.
//
// Records that shift between pages while the run is in progress are
// deduplicated, but records that are skipped by such a shift cannot be
// detected.
//
// Example usage:
//
//	engine := pagination.NewEngine(listingClient, pagination.DefaultConfig(), logger)
//	results, err := engine.FetchAll(ctx, listing.Query{Type: "koop", Filter: "/amsterdam/"})
//
// Independent queries can run concurrently with FetchMany; they share the
// fetcher and therefore its rate limit bucket. Pages within one run are
// always fetched sequentially.
package pagination
