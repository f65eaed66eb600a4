// Package catalog turns raw scrape results into persisted sources, products,
// and daily price snapshots.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/model"
	"github.com/buy-smart/pricewatch/internal/store"
)

// Registrar registers scrape output into the catalog store. All writes rely
// on the store's idempotent read-before-write semantics, so re-registering
// the same page is harmless.
type Registrar struct {
	store store.Store
	log   *zap.Logger
}

// NewRegistrar creates a registrar over the given store.
func NewRegistrar(st store.Store) *Registrar {
	return &Registrar{
		store: st,
		log:   zap.L().With(zap.String("component", "catalog.registrar")),
	}
}

// Stats summarizes one registration pass.
type Stats struct {
	Products  int
	Snapshots int
	Skipped   int
}

// RegisterResults upserts the source, each raw product, and one snapshot per
// product for today. Raw records missing an external id, name, or positive
// price are counted as skipped; store failures abort the pass.
func (r *Registrar) RegisterResults(ctx context.Context, sourceName, baseURL string, raw []model.RawProduct) (Stats, error) {
	var stats Stats
	if len(raw) == 0 {
		return stats, nil
	}

	src, err := r.store.RegisterSource(ctx, sourceName, baseURL)
	if err != nil {
		return stats, err
	}

	for _, rp := range raw {
		if rp.ExternalID == "" || rp.Name == "" || rp.Price <= 0 {
			stats.Skipped++
			continue
		}

		product, err := r.store.RegisterProduct(ctx, model.Product{
			SourceID:       src.ID,
			ExternalID:     rp.ExternalID,
			Name:           rp.Name,
			NormalizedName: NormalizeName(rp.Name),
			Category:       rp.Category,
			ImageURL:       rp.Image,
		})
		if err != nil {
			return stats, err
		}
		stats.Products++

		if _, err := r.store.RecordSnapshot(ctx, model.PriceSnapshot{
			ProductID:        product.ID,
			Price:            rp.Price,
			Unit:             rp.Unit,
			UnitSize:         rp.UnitSize,
			PricePerUnitDesc: rp.PricePerUnitDesc,
			URL:              rp.URL,
		}); err != nil {
			return stats, err
		}
		stats.Snapshots++
	}

	r.log.Info("registered scrape results",
		zap.String("source", sourceName),
		zap.Int("products", stats.Products),
		zap.Int("snapshots", stats.Snapshots),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
