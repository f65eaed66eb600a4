package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buy-smart/pricewatch/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedProduct(t *testing.T, st *SQLiteStore, external string) *model.Product {
	t.Helper()
	ctx := context.Background()
	src, err := st.RegisterSource(ctx, "hetzi-hinam", "https://shop.hazi-hinam.co.il")
	require.NoError(t, err)
	p, err := st.RegisterProduct(ctx, model.Product{
		SourceID:       src.ID,
		ExternalID:     external,
		Name:           "milk 1l",
		NormalizedName: "milk 1l",
	})
	require.NoError(t, err)
	return p
}

func TestSQLite_RegisterSource_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.RegisterSource(ctx, "hetzi-hinam", "https://shop.hazi-hinam.co.il")
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.NotNil(t, first.LastSeen)

	second, err := st.RegisterSource(ctx, "hetzi-hinam", "https://shop.hazi-hinam.co.il")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	sources, err := st.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "hetzi-hinam", sources[0].Name)
	require.NotNil(t, sources[0].LastSeen)
}

func TestSQLite_RegisterProduct_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	src, err := st.RegisterSource(ctx, "hetzi-hinam", "https://shop.hazi-hinam.co.il")
	require.NoError(t, err)

	first, err := st.RegisterProduct(ctx, model.Product{
		SourceID: src.ID, ExternalID: "101", Name: "milk 1l", NormalizedName: "milk 1l",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	// Re-registering with a drifted name returns the stored row untouched.
	second, err := st.RegisterProduct(ctx, model.Product{
		SourceID: src.ID, ExternalID: "101", Name: "milk 1 liter", NormalizedName: "milk 1 liter",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "milk 1l", second.Name)
}

func TestSQLite_RegisterProduct_DistinctPerSource(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.RegisterSource(ctx, "hetzi-hinam", "https://a.example")
	require.NoError(t, err)
	b, err := st.RegisterSource(ctx, "shufersal", "https://b.example")
	require.NoError(t, err)

	pa, err := st.RegisterProduct(ctx, model.Product{SourceID: a.ID, ExternalID: "101", Name: "milk"})
	require.NoError(t, err)
	pb, err := st.RegisterProduct(ctx, model.Product{SourceID: b.ID, ExternalID: "101", Name: "milk"})
	require.NoError(t, err)
	assert.NotEqual(t, pa.ID, pb.ID)
}

func TestSQLite_RecordSnapshot_OnePerDay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, st, "101")

	day := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	first, err := st.RecordSnapshot(ctx, model.PriceSnapshot{ProductID: p.ID, Price: 6.9, Timestamp: day})
	require.NoError(t, err)

	// Same calendar day, later hour and different price: the existing row wins.
	second, err := st.RecordSnapshot(ctx, model.PriceSnapshot{
		ProductID: p.ID, Price: 7.5, Timestamp: day.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, 6.9, second.Price, 0.001)

	// Next day appends.
	third, err := st.RecordSnapshot(ctx, model.PriceSnapshot{
		ProductID: p.ID, Price: 7.5, Timestamp: day.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestSQLite_DistinctDays(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, st, "101")

	for _, day := range []int{8, 9, 10} {
		_, err := st.RecordSnapshot(ctx, model.PriceSnapshot{
			ProductID: p.ID, Price: 6.9,
			Timestamp: time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	counts, err := st.DistinctDays(ctx, []int64{p.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, 3, counts[p.ID])
	_, present := counts[9999]
	assert.False(t, present)
}

func TestSQLite_DistinctDays_Empty(t *testing.T) {
	st := newTestStore(t)
	counts, err := st.DistinctDays(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSQLite_Snapshots_OrderedNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, st, "101")

	prices := map[int]float64{8: 6.9, 9: 7.1, 10: 7.5}
	for day, price := range prices {
		_, err := st.RecordSnapshot(ctx, model.PriceSnapshot{
			ProductID: p.ID, Price: price,
			Timestamp: time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	snaps, err := st.Snapshots(ctx, []int64{p.ID})
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.InDelta(t, 7.5, snaps[0].Price, 0.001)
	assert.InDelta(t, 7.1, snaps[1].Price, 0.001)
	assert.InDelta(t, 6.9, snaps[2].Price, 0.001)
}

func TestSQLite_ScrapeRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "milk", []string{"hetzi-hinam", "shufersal"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	err = st.FinishRun(ctx, run.ID, model.RunStatusComplete, 12, map[string]string{"shufersal": "timeout"})
	require.NoError(t, err)
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.FinishRun(context.Background(), "no-such-run", model.RunStatusComplete, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_TrackedQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddTrackedQuery(ctx, "milk"))
	require.NoError(t, st.AddTrackedQuery(ctx, "bread"))
	require.NoError(t, st.AddTrackedQuery(ctx, "milk")) // duplicate is a no-op

	queries, err := st.TrackedQueries(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"milk", "bread"}, queries)
}
