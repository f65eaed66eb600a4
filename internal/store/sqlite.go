package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/buy-smart/pricewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// date(timestamp) in the dedupe queries requires timestamps stored in
	// sqlite's own text format.
	if !strings.Contains(dsn, "?") {
		dsn += "?_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL UNIQUE,
	base_url  TEXT NOT NULL,
	last_seen DATETIME
);

CREATE TABLE IF NOT EXISTS product (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id           INTEGER NOT NULL REFERENCES source(id),
	external_product_id TEXT NOT NULL,
	name                TEXT NOT NULL,
	normalized_name     TEXT,
	category            TEXT,
	image_url           TEXT,
	UNIQUE (source_id, external_product_id)
);

CREATE TABLE IF NOT EXISTS price_snapshot (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id          INTEGER NOT NULL REFERENCES product(id),
	price               REAL NOT NULL,
	unit                TEXT,
	unit_size           TEXT,
	price_per_unit_desc TEXT,
	url                 TEXT,
	timestamp           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_run (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	sources     TEXT NOT NULL DEFAULT '[]',
	results     INTEGER NOT NULL DEFAULT 0,
	errors      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS tracked_query (
	query    TEXT PRIMARY KEY,
	added_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_product_source ON product(source_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_product_ts ON price_snapshot(product_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_scrape_run_started ON scrape_run(started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RegisterSource(ctx context.Context, name, baseURL string) (*model.Source, error) {
	now := time.Now().UTC()

	var src model.Source
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, base_url, last_seen FROM source WHERE name = ?`, name,
	).Scan(&src.ID, &src.Name, &src.BaseURL, &lastSeen)
	switch {
	case err == nil:
		if _, err := s.db.ExecContext(ctx, `UPDATE source SET last_seen = ? WHERE id = ?`, now, src.ID); err != nil {
			return nil, eris.Wrapf(err, "sqlite: touch source %s", name)
		}
		src.LastSeen = &now
		return &src, nil
	case err == sql.ErrNoRows:
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "sqlite: get source %s", name)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO source (name, base_url, last_seen) VALUES (?, ?, ?)`,
		name, baseURL, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert source %s", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: source insert id")
	}
	return &model.Source{ID: id, Name: name, BaseURL: baseURL, LastSeen: &now}, nil
}

func (s *SQLiteStore) RegisterProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var existing model.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, external_product_id, name, normalized_name, category, image_url
		 FROM product WHERE source_id = ? AND external_product_id = ?`,
		p.SourceID, p.ExternalID,
	).Scan(&existing.ID, &existing.SourceID, &existing.ExternalID, &existing.Name,
		&existing.NormalizedName, &existing.Category, &existing.ImageURL)
	switch {
	case err == nil:
		return &existing, nil
	case err == sql.ErrNoRows:
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "sqlite: get product %s/%s", p.ExternalID, p.Name)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO product (source_id, external_product_id, name, normalized_name, category, image_url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SourceID, p.ExternalID, p.Name, p.NormalizedName, p.Category, p.ImageURL,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert product %s", p.ExternalID)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: product insert id")
	}
	return &p, nil
}

func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap model.PriceSnapshot) (*model.PriceSnapshot, error) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	day := snap.Timestamp.UTC().Format("2006-01-02")

	var existing model.PriceSnapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp
		 FROM price_snapshot WHERE product_id = ? AND date(timestamp) = ?`,
		snap.ProductID, day,
	).Scan(&existing.ID, &existing.ProductID, &existing.Price, &existing.Unit,
		&existing.UnitSize, &existing.PricePerUnitDesc, &existing.URL, &existing.Timestamp)
	switch {
	case err == nil:
		return &existing, nil
	case err == sql.ErrNoRows:
		// fall through to insert
	default:
		return nil, eris.Wrapf(err, "sqlite: get day snapshot for product %d", snap.ProductID)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO price_snapshot (product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ProductID, snap.Price, snap.Unit, snap.UnitSize, snap.PricePerUnitDesc, snap.URL, snap.Timestamp,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert snapshot for product %d", snap.ProductID)
	}
	snap.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot insert id")
	}
	return &snap, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, base_url, last_seen FROM source ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var lastSeen sql.NullTime
		if err := rows.Scan(&src.ID, &src.Name, &src.BaseURL, &lastSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			src.LastSeen = &t
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *SQLiteStore) DistinctDays(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return counts, nil
	}

	query := `SELECT product_id, COUNT(DISTINCT date(timestamp)) FROM price_snapshot
		 WHERE product_id IN (` + placeholders(len(productIDs)) + `) GROUP BY product_id`
	rows, err := s.db.QueryContext(ctx, query, int64Args(productIDs)...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct days")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan distinct days")
		}
		counts[id] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: distinct days iterate")
}

func (s *SQLiteStore) Snapshots(ctx context.Context, productIDs []int64) ([]model.PriceSnapshot, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp
		 FROM price_snapshot WHERE product_id IN (` + placeholders(len(productIDs)) + `)
		 ORDER BY product_id, timestamp DESC`
	rows, err := s.db.QueryContext(ctx, query, int64Args(productIDs)...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshots")
	}
	defer rows.Close()

	var out []model.PriceSnapshot
	for rows.Next() {
		var snap model.PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.ProductID, &snap.Price, &snap.Unit,
			&snap.UnitSize, &snap.PricePerUnitDesc, &snap.URL, &snap.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: snapshots iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, query string, sources []string) (*model.ScrapeRun, error) {
	run := newScrapeRun(query, sources)

	sourcesJSON, err := json.Marshal(run.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_run (id, query, status, sources, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Query, string(run.Status), string(sourcesJSON), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, results int, errs map[string]string) error {
	errsJSON, err := marshalRunErrors(errs)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_run SET status = ?, results = ?, errors = ?, finished_at = ? WHERE id = ?`,
		string(status), results, errsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) AddTrackedQuery(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_query (query) VALUES (?) ON CONFLICT (query) DO NOTHING`, query,
	)
	return eris.Wrapf(err, "sqlite: add tracked query %q", query)
}

func (s *SQLiteStore) TrackedQueries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT query FROM tracked_query ORDER BY added_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tracked queries")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tracked query")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: tracked queries iterate")
}
