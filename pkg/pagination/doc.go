// Package pagination provides parallel batch fetching for offset-paginated APIs.
//
// Upstream search endpoints report the total number of hits with every page
// and accept a start offset plus a page size. This package fetches the first
// page, derives the remaining offsets and fetches them with a bounded worker
// pool built on errgroup.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher[Company](pageFetcher, pagination.DefaultConfig(), logger)
//	companies, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - Fetches the first page to learn the total
//   - Fetches the remaining pages with at most MaxConcurrency requests in flight
//   - Returns the items in offset order
//   - Fails the whole fetch on the first page error
package pagination
