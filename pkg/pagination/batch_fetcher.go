package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int
	// PageSize is the number of items requested per page.
	PageSize int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxItems stops fetching once this many items were collected (0 = no cap).
	MaxItems int
}

// DefaultConfig returns the configuration used for Companies House searches.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		PageSize:       5000,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches the page of at most size items starting at offset,
// returning the items and the total number of items in the result set.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, offset, size int) (items []T, total int, err error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, offset, size int) ([]T, int, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, offset, size int) ([]T, int, error) {
	return f(ctx, offset, size)
}

// BatchFetcher collects every item of an offset-paginated result set.
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config, logger zerolog.Logger) *BatchFetcher[T] {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchAll fetches the first page, then the remaining pages in parallel,
// and returns all items in offset order.
//
// Pages are laid out with the item count of the first page as stride.
// If the upstream returns short pages, everything after the first gap is
// fetched sequentially from the number of items collected so far. An empty page
// ends the fetch early. Any page error fails the whole fetch.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context) ([]T, error) {
	start := time.Now()

	first, total, err := bf.fetchPage(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	total = bf.capTotal(total)
	stride := len(first)

	bf.logger.Debug().
		Int("total", total).
		Int("first_page", stride).
		Msg("Starting paginated fetch")

	// Single page optimization
	if stride == 0 || stride >= total {
		return bf.truncate(first), nil
	}

	var offsets []int
	for offset := stride; offset < total; offset += stride {
		offsets = append(offsets, offset)
	}

	pages := make([][]T, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for i, offset := range offsets {
		g.Go(func() error {
			items, _, err := bf.fetchPage(gctx, offset)
			if err != nil {
				return fmt.Errorf("fetch page at offset %d: %w", offset, err)
			}
			pages[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		bf.logger.Warn().
			Err(err).
			Int("total", total).
			Msg("Paginated fetch failed")
		return nil, err
	}

	items := make([]T, 0, total)
	items = append(items, first...)
	for _, page := range pages {
		items = append(items, page...)
	}

	if collectedShort(pages, stride) {
		items = items[:stride+contiguous(pages, stride)]
	}
	for len(items) < total {
		page, _, err := bf.fetchPage(ctx, len(items))
		if err != nil {
			return nil, fmt.Errorf("fetch page at offset %d: %w", len(items), err)
		}
		if len(page) == 0 {
			bf.logger.Warn().
				Int("collected", len(items)).
				Int("total", total).
				Msg("Upstream returned an empty page before the reported total")
			break
		}
		items = append(items, page...)
	}

	bf.logger.Debug().
		Int("items", len(items)).
		Int("pages", len(offsets)+1).
		Dur("duration", time.Since(start)).
		Msg("Paginated fetch complete")

	return bf.truncate(items), nil
}

func (bf *BatchFetcher[T]) fetchPage(ctx context.Context, offset int) ([]T, int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, offset, bf.config.PageSize)
}

func (bf *BatchFetcher[T]) capTotal(total int) int {
	if bf.config.MaxItems > 0 && total > bf.config.MaxItems {
		return bf.config.MaxItems
	}
	return total
}

func (bf *BatchFetcher[T]) truncate(items []T) []T {
	if bf.config.MaxItems > 0 && len(items) > bf.config.MaxItems {
		return items[:bf.config.MaxItems]
	}
	return items
}

// collectedShort reports whether any page except the last came back with
// fewer than stride items, leaving a gap in the offsets.
func collectedShort[T any](pages [][]T, stride int) bool {
	for i := 0; i < len(pages)-1; i++ {
		if len(pages[i]) < stride {
			return true
		}
	}
	return false
}

// contiguous returns the number of items in the leading run of full pages.
func contiguous[T any](pages [][]T, stride int) int {
	n := 0
	for _, page := range pages {
		n += len(page)
		if len(page) < stride {
			break
		}
	}
	return n
}
