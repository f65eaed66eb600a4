package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/buy-smart/pricewatch/internal/model"
)

// newScrapeRun builds a fresh run record with a generated id.
func newScrapeRun(query string, sources []string) *model.ScrapeRun {
	return &model.ScrapeRun{
		ID:        uuid.New().String(),
		Query:     query,
		Status:    model.RunStatusRunning,
		Sources:   sources,
		StartedAt: time.Now().UTC(),
	}
}

// marshalRunErrors encodes the per-source error map, mapping an empty map to
// SQL NULL so clean runs stay clean in the table.
func marshalRunErrors(errs map[string]string) (any, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run errors")
	}
	return string(b), nil
}
