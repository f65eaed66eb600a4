package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buy-smart/pricewatch/internal/model"
)

func TestCoordinator_Search_MergesAllSources(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "a", products: []model.RawProduct{
		{ExternalID: "1", Name: "milk 1l", Price: 6.9},
	}})
	reg.Register(&fakeScraper{name: "b", products: []model.RawProduct{
		{ExternalID: "2", Name: "milk 2l", Price: 12.5},
		{ExternalID: "3", Name: "soy milk", Price: 9.0},
	}})

	coord := NewCoordinator(reg, 4)
	results, failures := coord.Search(context.Background(), "milk", 1, 50)

	require.Empty(t, failures)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Source)
	assert.Len(t, results[0].Products, 1)
	assert.Equal(t, "b", results[1].Source)
	assert.Len(t, results[1].Products, 2)
}

func TestCoordinator_Search_IsolatesFailingSource(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "good", products: []model.RawProduct{
		{ExternalID: "1", Name: "milk 1l", Price: 6.9},
	}})
	reg.Register(&fakeScraper{name: "slow", err: context.DeadlineExceeded})

	coord := NewCoordinator(reg, 4)
	results, failures := coord.Search(context.Background(), "milk", 1, 50)

	// The healthy source's page still comes back in full.
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Source)
	require.Len(t, results[0].Products, 1)

	require.Len(t, failures, 1)
	assert.Contains(t, failures, "slow")
}

func TestCoordinator_Search_AllSourcesFail(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "a", err: errors.New("boom")})
	reg.Register(&fakeScraper{name: "b", err: errors.New("bust")})

	coord := NewCoordinator(reg, 4)
	results, failures := coord.Search(context.Background(), "milk", 1, 50)

	assert.Empty(t, results)
	assert.Len(t, failures, 2)
	assert.Equal(t, "boom", failures["a"])
	assert.Equal(t, "bust", failures["b"])
}

func TestCoordinator_Search_EmptyRegistry(t *testing.T) {
	coord := NewCoordinator(NewRegistry(), 4)
	results, failures := coord.Search(context.Background(), "milk", 1, 50)
	assert.Empty(t, results)
	assert.Empty(t, failures)
}

func TestCoordinator_Search_BoundsConcurrency(t *testing.T) {
	reg := NewRegistry()
	scrapers := make([]*fakeScraper, 0, 6)
	for _, name := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		s := &fakeScraper{name: name, delay: 20 * time.Millisecond}
		scrapers = append(scrapers, s)
		reg.Register(s)
	}

	coord := NewCoordinator(reg, 2)
	start := time.Now()
	results, failures := coord.Search(context.Background(), "milk", 1, 50)
	elapsed := time.Since(start)

	require.Empty(t, failures)
	assert.Len(t, results, 6)
	for _, s := range scrapers {
		assert.Equal(t, 1, s.callCount)
	}
	// 6 scrapers at 20ms each over 2 workers is at least 3 serialized batches.
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestCoordinator_Categories_SkipsFailingSource(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "a", cats: []model.Category{{ID: "10", Name: "dairy"}}})
	reg.Register(&fakeScraper{name: "b", err: errors.New("down")})

	coord := NewCoordinator(reg, 4)
	results := coord.Categories(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Source)
	require.Len(t, results[0].Categories, 1)
	assert.Equal(t, "dairy", results[0].Categories[0].Name)
}

func TestNewCoordinator_DefaultsWorkerCount(t *testing.T) {
	coord := NewCoordinator(NewRegistry(), 0)
	assert.Equal(t, 4, coord.workers)
}
