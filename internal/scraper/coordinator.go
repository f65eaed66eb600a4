package scraper

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/buy-smart/pricewatch/internal/model"
)

// Coordinator broadcasts one query to every registered adapter and merges
// the partial results. Worker count is bounded because the upstream sites
// rate-limit aggressively.
type Coordinator struct {
	reg     *Registry
	workers int
	log     *zap.Logger
}

// NewCoordinator creates a fan-out coordinator over the given registry.
func NewCoordinator(reg *Registry, workers int) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	return &Coordinator{
		reg:     reg,
		workers: workers,
		log:     zap.L().With(zap.String("component", "scraper.coordinator")),
	}
}

// Search dispatches the query to all adapters on a bounded worker pool.
// A failing adapter is logged, recorded in the returned error map, and
// excluded from the merged results; it never aborts its siblings. Result
// order across adapters is not guaranteed, but each adapter's own order is
// preserved. In-flight adapters run to completion or timeout; there is no
// early cancellation when siblings finish first.
func (c *Coordinator) Search(ctx context.Context, query string, page, pageSize int) ([]model.SearchResult, map[string]string) {
	scrapers := c.reg.All()
	results := make([]*model.SearchResult, len(scrapers))

	var mu sync.Mutex
	failures := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, s := range scrapers {
		g.Go(func() error {
			products, err := s.Search(gctx, query, page, pageSize)
			if err != nil {
				c.log.Warn("adapter search failed",
					zap.String("source", s.Name()),
					zap.String("query", query),
					zap.Error(err),
				)
				mu.Lock()
				failures[s.Name()] = err.Error()
				mu.Unlock()
				return nil // isolate: never abort sibling adapters
			}
			results[i] = &model.SearchResult{Source: s.Name(), Products: products}
			return nil
		})
	}
	_ = g.Wait() // workers only return nil

	merged := make([]model.SearchResult, 0, len(scrapers))
	for _, r := range results {
		if r != nil {
			merged = append(merged, *r)
		}
	}
	return merged, failures
}

// Categories runs the same fan-out/isolate pattern for category listings.
// Adapters that fail contribute no entry at all.
func (c *Coordinator) Categories(ctx context.Context) []model.CategoryResult {
	scrapers := c.reg.All()
	results := make([]*model.CategoryResult, len(scrapers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, s := range scrapers {
		g.Go(func() error {
			cats, err := s.FetchCategories(gctx)
			if err != nil {
				c.log.Warn("adapter category fetch failed",
					zap.String("source", s.Name()),
					zap.Error(err),
				)
				return nil
			}
			results[i] = &model.CategoryResult{Source: s.Name(), Categories: cats}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.CategoryResult, 0, len(scrapers))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
