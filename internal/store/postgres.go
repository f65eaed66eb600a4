package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/buy-smart/pricewatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest registration path.
var preparedStatements = map[string]string{
	"get_source_by_name": `SELECT id, name, base_url, last_seen FROM source WHERE name = $1`,
	"get_product":        `SELECT id, source_id, external_product_id, name, normalized_name, category, image_url FROM product WHERE source_id = $1 AND external_product_id = $2`,
	"get_day_snapshot":   `SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp FROM price_snapshot WHERE product_id = $1 AND timestamp::date = $2::date`,
	"insert_snapshot":    `INSERT INTO price_snapshot (product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source (
	id        BIGSERIAL PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	base_url  TEXT NOT NULL,
	last_seen TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS product (
	id                  BIGSERIAL PRIMARY KEY,
	source_id           BIGINT NOT NULL REFERENCES source(id),
	external_product_id TEXT NOT NULL,
	name                TEXT NOT NULL,
	normalized_name     TEXT,
	category            TEXT,
	image_url           TEXT,
	UNIQUE (source_id, external_product_id)
);

CREATE TABLE IF NOT EXISTS price_snapshot (
	id                  BIGSERIAL PRIMARY KEY,
	product_id          BIGINT NOT NULL REFERENCES product(id),
	price               DOUBLE PRECISION NOT NULL,
	unit                TEXT,
	unit_size           TEXT,
	price_per_unit_desc TEXT,
	url                 TEXT,
	timestamp           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_run (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	sources     JSONB NOT NULL DEFAULT '[]',
	results     INT NOT NULL DEFAULT 0,
	errors      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tracked_query (
	query    TEXT PRIMARY KEY,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_product_source ON product(source_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_product_ts ON price_snapshot(product_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_scrape_run_started ON scrape_run(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RegisterSource returns the source row for name, inserting it on first
// sight and bumping last_seen either way.
func (s *PostgresStore) RegisterSource(ctx context.Context, name, baseURL string) (*model.Source, error) {
	now := time.Now().UTC()

	var src model.Source
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, base_url, last_seen FROM source WHERE name = $1`, name,
	).Scan(&src.ID, &src.Name, &src.BaseURL, &src.LastSeen)
	switch {
	case err == nil:
		if _, err := s.pool.Exec(ctx, `UPDATE source SET last_seen = $1 WHERE id = $2`, now, src.ID); err != nil {
			return nil, eris.Wrapf(err, "postgres: touch source %s", name)
		}
		src.LastSeen = &now
		return &src, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "postgres: get source %s", name)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO source (name, base_url, last_seen) VALUES ($1, $2, $3) RETURNING id`,
		name, baseURL, now,
	).Scan(&src.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert source %s", name)
	}
	src.Name = name
	src.BaseURL = baseURL
	src.LastSeen = &now
	return &src, nil
}

// RegisterProduct returns the existing product for (source_id, external id)
// or inserts a new row. Idempotent by read-before-write, not by catching
// constraint violations.
func (s *PostgresStore) RegisterProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var existing model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, source_id, external_product_id, name, normalized_name, category, image_url
		 FROM product WHERE source_id = $1 AND external_product_id = $2`,
		p.SourceID, p.ExternalID,
	).Scan(&existing.ID, &existing.SourceID, &existing.ExternalID, &existing.Name,
		&existing.NormalizedName, &existing.Category, &existing.ImageURL)
	switch {
	case err == nil:
		return &existing, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "postgres: get product %s/%s", p.ExternalID, p.Name)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO product (source_id, external_product_id, name, normalized_name, category, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.SourceID, p.ExternalID, p.Name, p.NormalizedName, p.Category, p.ImageURL,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert product %s", p.ExternalID)
	}
	return &p, nil
}

// RecordSnapshot appends one observation unless the product already has one
// for the same calendar day, in which case the existing row is returned.
func (s *PostgresStore) RecordSnapshot(ctx context.Context, snap model.PriceSnapshot) (*model.PriceSnapshot, error) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	var existing model.PriceSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp
		 FROM price_snapshot WHERE product_id = $1 AND timestamp::date = $2::date`,
		snap.ProductID, snap.Timestamp,
	).Scan(&existing.ID, &existing.ProductID, &existing.Price, &existing.Unit,
		&existing.UnitSize, &existing.PricePerUnitDesc, &existing.URL, &existing.Timestamp)
	switch {
	case err == nil:
		return &existing, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "postgres: get day snapshot for product %d", snap.ProductID)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO price_snapshot (product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		snap.ProductID, snap.Price, snap.Unit, snap.UnitSize, snap.PricePerUnitDesc, snap.URL, snap.Timestamp,
	).Scan(&snap.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert snapshot for product %d", snap.ProductID)
	}
	return &snap, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, base_url, last_seen FROM source ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.BaseURL, &src.LastSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

// DistinctDays counts distinct snapshot calendar dates per product.
func (s *PostgresStore) DistinctDays(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return counts, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT product_id, COUNT(DISTINCT timestamp::date)
		 FROM price_snapshot WHERE product_id = ANY($1) GROUP BY product_id`,
		productIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct days")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distinct days")
		}
		counts[id] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: distinct days iterate")
}

// Snapshots returns observations ordered by product, then most recent first.
func (s *PostgresStore) Snapshots(ctx context.Context, productIDs []int64) ([]model.PriceSnapshot, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp
		 FROM price_snapshot WHERE product_id = ANY($1)
		 ORDER BY product_id, timestamp DESC`,
		productIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshots")
	}
	defer rows.Close()

	var out []model.PriceSnapshot
	for rows.Next() {
		var snap model.PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.ProductID, &snap.Price, &snap.Unit,
			&snap.UnitSize, &snap.PricePerUnitDesc, &snap.URL, &snap.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: snapshots iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, query string, sources []string) (*model.ScrapeRun, error) {
	run := newScrapeRun(query, sources)

	sourcesJSON, err := json.Marshal(run.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_run (id, query, status, sources, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Query, string(run.Status), sourcesJSON, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, results int, errs map[string]string) error {
	errsJSON, err := marshalRunErrors(errs)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_run SET status = $1, results = $2, errors = $3, finished_at = $4 WHERE id = $5`,
		string(status), results, errsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) AddTrackedQuery(ctx context.Context, query string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_query (query) VALUES ($1) ON CONFLICT (query) DO NOTHING`, query,
	)
	return eris.Wrapf(err, "postgres: add tracked query %q", query)
}

func (s *PostgresStore) TrackedQueries(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT query FROM tracked_query ORDER BY added_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tracked queries")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracked query")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: tracked queries iterate")
}
