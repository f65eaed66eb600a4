// Package history answers price-history queries with a freshness gate:
// only products observed on enough distinct days qualify.
package history

import (
	"context"
	"strconv"

	"github.com/buy-smart/pricewatch/internal/model"
	"github.com/buy-smart/pricewatch/internal/store"
)

const (
	// DefaultMinDays is the distinct-day threshold applied when the caller
	// passes zero. Two is also the hard floor.
	DefaultMinDays = 2
	// DefaultPerProductLimit caps returned snapshots per product.
	DefaultPerProductLimit = 10
	// MaxPerProductLimit is the upper bound a caller may request.
	MaxPerProductLimit = 60
)

// Aggregator shapes per-product daily price history from the catalog store.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// History returns at most perProductLimit snapshots per qualifying product,
// most recent day first, keyed by the product id in decimal. Products below
// the distinct-day threshold, unknown ids, and an empty request all yield an
// absent key or an empty map, never an error.
func (a *Aggregator) History(ctx context.Context, productIDs []int64, minDays, perProductLimit int) (map[string][]model.PricePoint, error) {
	out := make(map[string][]model.PricePoint)
	if len(productIDs) == 0 {
		return out, nil
	}

	if minDays < DefaultMinDays {
		minDays = DefaultMinDays
	}
	if perProductLimit <= 0 {
		perProductLimit = DefaultPerProductLimit
	}
	if perProductLimit > MaxPerProductLimit {
		perProductLimit = MaxPerProductLimit
	}

	counts, err := a.store.DistinctDays(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	qualifying := make([]int64, 0, len(productIDs))
	for _, id := range productIDs {
		if counts[id] >= minDays {
			qualifying = append(qualifying, id)
		}
	}
	if len(qualifying) == 0 {
		return out, nil
	}

	snaps, err := a.store.Snapshots(ctx, qualifying)
	if err != nil {
		return nil, err
	}

	// Snapshots arrive grouped by product, newest first; stop collecting
	// for a product once its cap is reached.
	taken := make(map[int64]int, len(qualifying))
	for _, snap := range snaps {
		if taken[snap.ProductID] >= perProductLimit {
			continue
		}
		key := strconv.FormatInt(snap.ProductID, 10)
		out[key] = append(out[key], model.PricePoint{
			Day:              snap.Timestamp.UTC().Format("2006-01-02"),
			Price:            snap.Price,
			Unit:             snap.Unit,
			UnitSize:         snap.UnitSize,
			PricePerUnitDesc: snap.PricePerUnitDesc,
			URL:              snap.URL,
		})
		taken[snap.ProductID]++
	}
	return out, nil
}
