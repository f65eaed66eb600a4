package scraper

import (
	"context"
	"time"

	"github.com/buy-smart/pricewatch/internal/model"
)

// fakeScraper implements Scraper for testing.
type fakeScraper struct {
	name      string
	baseURL   string
	products  []model.RawProduct
	cats      []model.Category
	err       error
	delay     time.Duration
	callCount int
}

func (f *fakeScraper) Name() string    { return f.name }
func (f *fakeScraper) BaseURL() string { return f.baseURL }

func (f *fakeScraper) FetchCategories(ctx context.Context) ([]model.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cats, nil
}

func (f *fakeScraper) Search(ctx context.Context, query string, page, pageSize int) ([]model.RawProduct, error) {
	f.callCount++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}
