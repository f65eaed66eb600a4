package model

import "time"

// RawProduct is one product record as parsed from an upstream site, before
// any catalog registration.
type RawProduct struct {
	ExternalID       string  `json:"external_id"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	Unit             string  `json:"unit,omitempty"`
	UnitSize         string  `json:"unit_size,omitempty"`
	PricePerUnitDesc string  `json:"price_per_unit_desc,omitempty"`
	Image            string  `json:"image,omitempty"`
	URL              string  `json:"url,omitempty"`
	Category         string  `json:"category,omitempty"`
}

// Category is one entry of a source's flattened category tree.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult pairs one adapter's search output with its source name.
type SearchResult struct {
	Source   string       `json:"source"`
	Products []RawProduct `json:"products"`
}

// CategoryResult pairs one adapter's category listing with its source name.
// Adapters that fail contribute no CategoryResult at all.
type CategoryResult struct {
	Source     string     `json:"source"`
	Categories []Category `json:"data"`
}

// RunStatus represents the state of a recorded scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ScrapeRun records one fan-out search for observability: which sources were
// queried, how many results came back, and which adapters failed.
type ScrapeRun struct {
	ID         string            `json:"id"`
	Query      string            `json:"query"`
	Status     RunStatus         `json:"status"`
	Sources    []string          `json:"sources"`
	Results    int               `json:"results"`
	Errors     map[string]string `json:"errors,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}
