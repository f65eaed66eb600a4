package model

import "time"

// Source is one upstream scraping target. One row per site; looked up by
// unique name and created lazily on first scrape.
type Source struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	BaseURL  string     `json:"base_url"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Product is a catalog entry owned by a Source. The (SourceID, ExternalID)
// pair is unique: registering the same pair twice returns the existing row.
type Product struct {
	ID             int64  `json:"id"`
	SourceID       int64  `json:"source_id"`
	ExternalID     string `json:"external_id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name,omitempty"`
	Category       string `json:"category,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

// PriceSnapshot is one immutable price observation for a product. At most one
// snapshot exists per (product, calendar day); same-day registration returns
// the existing row.
type PriceSnapshot struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	Price            float64   `json:"price"`
	Unit             string    `json:"unit,omitempty"`
	UnitSize         string    `json:"unit_size,omitempty"`
	PricePerUnitDesc string    `json:"price_per_unit_desc,omitempty"`
	URL              string    `json:"url,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// PricePoint is one shaped history entry as returned by the history endpoint.
type PricePoint struct {
	Day              string  `json:"day"`
	Price            float64 `json:"price"`
	Unit             string  `json:"unit,omitempty"`
	UnitSize         string  `json:"unit_size,omitempty"`
	PricePerUnitDesc string  `json:"price_per_unit_desc,omitempty"`
	URL              string  `json:"url,omitempty"`
}
