package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/catalog"
	"github.com/buy-smart/pricewatch/internal/config"
	"github.com/buy-smart/pricewatch/internal/history"
	"github.com/buy-smart/pricewatch/internal/model"
	"github.com/buy-smart/pricewatch/internal/scraper"
	"github.com/buy-smart/pricewatch/internal/store"
)

// scrapeEnv holds the initialized store, adapter registry, and the services
// built on them, shared by the serve/search/poll commands.
type scrapeEnv struct {
	Store     store.Store
	Registry  *scraper.Registry
	Coord     *scraper.Coordinator
	Registrar *catalog.Registrar
	History   *history.Aggregator
}

// Close releases resources held by the environment.
func (e *scrapeEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured catalog backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, builds the adapter registry from the sources
// file, and wires the coordinator, registrar, and history aggregator.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*scrapeEnv, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	defs, err := config.LoadSources(cfg.Sources.File)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := scraper.BuildRegistry(defs, cfg.Session)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Info("sources registered", zap.Strings("sources", reg.Names()))

	return &scrapeEnv{
		Store:     st,
		Registry:  reg,
		Coord:     scraper.NewCoordinator(reg, cfg.Search.Workers),
		Registrar: catalog.NewRegistrar(st),
		History:   history.NewAggregator(st),
	}, nil
}

// searchAndRecord fans the query out to every adapter, records a scrape run
// for it, and optionally registers the results into the catalog. Run and
// registration bookkeeping failures are logged, never surfaced: partial
// results still reach the caller.
func searchAndRecord(ctx context.Context, env *scrapeEnv, query string, page, pageSize int, register bool) ([]model.SearchResult, map[string]string) {
	run, err := env.Store.CreateRun(ctx, query, env.Registry.Names())
	if err != nil {
		zap.L().Error("failed to create scrape run", zap.Error(err))
	}

	results, failures := env.Coord.Search(ctx, query, page, pageSize)

	total := 0
	for _, res := range results {
		total += len(res.Products)
		if !register {
			continue
		}
		s, err := env.Registry.Get(res.Source)
		if err != nil {
			zap.L().Error("result from unregistered source", zap.String("source", res.Source))
			continue
		}
		if _, err := env.Registrar.RegisterResults(ctx, res.Source, s.BaseURL(), res.Products); err != nil {
			zap.L().Error("failed to register search results",
				zap.String("source", res.Source),
				zap.Error(err),
			)
		}
	}

	if run != nil {
		status := model.RunStatusComplete
		if len(results) == 0 && len(failures) > 0 {
			status = model.RunStatusFailed
		}
		if err := env.Store.FinishRun(ctx, run.ID, status, total, failures); err != nil {
			zap.L().Error("failed to finish scrape run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	return results, failures
}
