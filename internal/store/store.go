// Package store persists the scraping catalog: sources, products, and their
// price snapshot time series.
package store

import (
	"context"

	"github.com/buy-smart/pricewatch/internal/model"
)

// Store defines the persistence interface for the catalog. Registration
// operations are idempotent by read-before-write: re-registering an existing
// row returns it instead of duplicating.
type Store interface {
	// Catalog
	RegisterSource(ctx context.Context, name, baseURL string) (*model.Source, error)
	RegisterProduct(ctx context.Context, p model.Product) (*model.Product, error)
	// RecordSnapshot appends one observation; at most one snapshot exists
	// per (product, calendar day), and the existing row wins.
	RecordSnapshot(ctx context.Context, snap model.PriceSnapshot) (*model.PriceSnapshot, error)
	ListSources(ctx context.Context) ([]model.Source, error)

	// History
	DistinctDays(ctx context.Context, productIDs []int64) (map[int64]int, error)
	// Snapshots returns observations for the given products ordered by
	// product id, then timestamp descending (most recent first).
	Snapshots(ctx context.Context, productIDs []int64) ([]model.PriceSnapshot, error)

	// Scrape runs
	CreateRun(ctx context.Context, query string, sources []string) (*model.ScrapeRun, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, results int, errs map[string]string) error

	// Tracked queries (re-scraped by the poller)
	AddTrackedQuery(ctx context.Context, query string) error
	TrackedQueries(ctx context.Context) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
