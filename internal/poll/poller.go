// Package poll re-runs tracked search queries on an interval so catalog
// products keep accumulating one snapshot per day.
package poll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/catalog"
	"github.com/buy-smart/pricewatch/internal/scraper"
	"github.com/buy-smart/pricewatch/internal/store"
)

// Poller runs the tracked queries through the fan-out coordinator and
// registers the results.
type Poller struct {
	store     store.Store
	coord     *scraper.Coordinator
	reg       *scraper.Registry
	registrar *catalog.Registrar
	interval  time.Duration
	pageSize  int
	log       *zap.Logger
}

// New creates a poller. Interval values below one minute are bumped to it to
// keep a misconfiguration from hammering the upstreams.
func New(st store.Store, coord *scraper.Coordinator, reg *scraper.Registry, registrar *catalog.Registrar, interval time.Duration, pageSize int) *Poller {
	if interval < time.Minute {
		interval = time.Minute
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Poller{
		store:     st,
		coord:     coord,
		reg:       reg,
		registrar: registrar,
		interval:  interval,
		pageSize:  pageSize,
		log:       zap.L().With(zap.String("component", "poll")),
	}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("poller started", zap.Duration("interval", p.interval))
	p.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep runs every tracked query once. Per-query failures are logged and the
// sweep moves on; only cancellation stops it.
func (p *Poller) sweep(ctx context.Context) {
	queries, err := p.store.TrackedQueries(ctx)
	if err != nil {
		p.log.Error("failed to list tracked queries", zap.Error(err))
		return
	}
	if len(queries) == 0 {
		p.log.Debug("no tracked queries")
		return
	}

	for _, query := range queries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results, failures := p.coord.Search(ctx, query, 1, p.pageSize)
		for _, res := range results {
			s, err := p.reg.Get(res.Source)
			if err != nil {
				p.log.Error("result from unregistered source", zap.String("source", res.Source))
				continue
			}
			if _, err := p.registrar.RegisterResults(ctx, res.Source, s.BaseURL(), res.Products); err != nil {
				p.log.Error("failed to register poll results",
					zap.String("source", res.Source),
					zap.String("query", query),
					zap.Error(err),
				)
			}
		}
		if len(failures) > 0 {
			p.log.Warn("some sources failed during poll",
				zap.String("query", query),
				zap.Int("failed", len(failures)),
			)
		}
	}
	p.log.Info("poll sweep complete", zap.Int("queries", len(queries)))
}
