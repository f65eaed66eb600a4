// Package scraper holds the per-site source adapters and the fan-out
// coordinator that broadcasts searches across them.
package scraper

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/buy-smart/pricewatch/internal/model"
)

// ErrUpstream signals a non-success status or malformed payload from an
// upstream site. The coordinator contains it; callers of a fan-out search
// never see it.
var ErrUpstream = eris.New("scraper: upstream error")

// Scraper is one upstream site adapter. Implementations bind to one site's
// URL scheme, payload shape, and parsing; new sources are added by
// implementing this interface, not by touching the coordinator.
type Scraper interface {
	// Name returns the registered source name (e.g. "hetzi-hinam").
	Name() string
	// BaseURL returns the upstream base URL, used for catalog registration.
	BaseURL() string
	// FetchCategories returns the site's category tree flattened to
	// {id, name} pairs.
	FetchCategories(ctx context.Context) ([]model.Category, error)
	// Search returns raw product records for a free-text query. A soft
	// "no result" from the upstream yields (nil, nil), not an error.
	Search(ctx context.Context, query string, page, pageSize int) ([]model.RawProduct, error)
}
