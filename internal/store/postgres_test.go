package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buy-smart/pricewatch/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_RegisterSource_Existing(t *testing.T) {
	st, mock := newMockStore(t)
	seen := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT id, name, base_url, last_seen FROM source`).
		WithArgs("hetzi-hinam").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "base_url", "last_seen"}).
			AddRow(int64(7), "hetzi-hinam", "https://shop.hazi-hinam.co.il", &seen))
	mock.ExpectExec(`UPDATE source SET last_seen`).
		WithArgs(pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	src, err := st.RegisterSource(context.Background(), "hetzi-hinam", "https://shop.hazi-hinam.co.il")
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.ID)
	require.NotNil(t, src.LastSeen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RegisterSource_InsertsNew(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, base_url, last_seen FROM source`).
		WithArgs("shufersal").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO source`).
		WithArgs("shufersal", "https://www.shufersal.co.il", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))

	src, err := st.RegisterSource(context.Background(), "shufersal", "https://www.shufersal.co.il")
	require.NoError(t, err)
	assert.Equal(t, int64(8), src.ID)
	assert.Equal(t, "shufersal", src.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RegisterProduct_ReturnsExisting(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, source_id, external_product_id, name, normalized_name, category, image_url`).
		WithArgs(int64(7), "101").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_id", "external_product_id", "name", "normalized_name", "category", "image_url",
		}).AddRow(int64(12), int64(7), "101", "milk 1l", "milk 1l", "dairy", ""))

	p, err := st.RegisterProduct(context.Background(), model.Product{
		SourceID: 7, ExternalID: "101", Name: "milk 1 liter",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.ID)
	// The stored row wins over the incoming record.
	assert.Equal(t, "milk 1l", p.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordSnapshot_SameDayReturnsExisting(t *testing.T) {
	st, mock := newMockStore(t)
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, product_id, price, unit, unit_size, price_per_unit_desc, url, timestamp`).
		WithArgs(int64(12), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "price", "unit", "unit_size", "price_per_unit_desc", "url", "timestamp",
		}).AddRow(int64(33), int64(12), 6.9, "l", "1", "6.90/l", "", ts))

	snap, err := st.RecordSnapshot(context.Background(), model.PriceSnapshot{
		ProductID: 12, Price: 7.5, Timestamp: ts.Add(6 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(33), snap.ID)
	assert.InDelta(t, 6.9, snap.Price, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordSnapshot_InsertsNewDay(t *testing.T) {
	st, mock := newMockStore(t)
	ts := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, product_id, price`).
		WithArgs(int64(12), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO price_snapshot`).
		WithArgs(int64(12), 7.5, "l", "1", "7.50/l", "", ts).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(34)))

	snap, err := st.RecordSnapshot(context.Background(), model.PriceSnapshot{
		ProductID: 12, Price: 7.5, Unit: "l", UnitSize: "1", PricePerUnitDesc: "7.50/l", Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(34), snap.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DistinctDays(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT product_id, COUNT\(DISTINCT timestamp::date\)`).
		WithArgs([]int64{12, 15}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "count"}).
			AddRow(int64(12), 3).
			AddRow(int64(15), 1))

	counts, err := st.DistinctDays(context.Background(), []int64{12, 15})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{12: 3, 15: 1}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRun_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE scrape_run`).
		WithArgs("complete", 5, nil, pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.FinishRun(context.Background(), "run-1", model.RunStatusComplete, 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	require.NoError(t, mock.ExpectationsWereMet())
}
