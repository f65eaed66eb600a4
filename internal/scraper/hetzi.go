package scraper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/model"
	"github.com/buy-smart/pricewatch/internal/session"
)

const (
	hetziCatalogPath = "/proxy/api/Catalog/get"
	hetziSearchPath  = "/proxy/api/Search/Products"

	// hetziBodyLimit caps how much of an upstream response is read.
	hetziBodyLimit = 8 * 1024 * 1024
)

// Hetzi scrapes the Hetzi Hinam shop through its JSON proxy API. All calls
// go through a guest-session manager that owns the short-lived token.
type Hetzi struct {
	name    string
	session *session.Manager
	log     *zap.Logger
}

// NewHetzi creates the Hetzi Hinam adapter around its session manager.
func NewHetzi(name string, sess *session.Manager) *Hetzi {
	return &Hetzi{
		name:    name,
		session: sess,
		log:     zap.L().With(zap.String("component", "scraper"), zap.String("source", name)),
	}
}

func (h *Hetzi) Name() string    { return h.name }
func (h *Hetzi) BaseURL() string { return h.session.BaseURL() }

// hetziCatalog mirrors the proxy catalog payload: a two-level category tree.
type hetziCatalog struct {
	Results struct {
		Categories []hetziCategory `json:"Categories"`
	} `json:"Results"`
}

type hetziCategory struct {
	ID   json.Number     `json:"Id"`
	Name string          `json:"Name"`
	Subs []hetziCategory `json:"SubCategories"`
}

// FetchCategories flattens the site's category tree into {id, name} pairs.
// It is not retried beyond the session manager's built-in refresh.
func (h *Hetzi) FetchCategories(ctx context.Context) ([]model.Category, error) {
	resp, err := h.session.Do(ctx, http.MethodGet, h.BaseURL()+hetziCatalogPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstream, "catalog: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, hetziBodyLimit))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read body")
	}

	var catalog hetziCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, eris.Wrapf(ErrUpstream, "catalog: malformed payload: %v", err)
	}

	var out []model.Category
	for _, c := range catalog.Results.Categories {
		out = appendCategory(out, c)
	}
	return out, nil
}

func appendCategory(out []model.Category, c hetziCategory) []model.Category {
	if c.ID.String() != "" && c.Name != "" {
		out = append(out, model.Category{ID: c.ID.String(), Name: c.Name})
	}
	for _, sub := range c.Subs {
		out = appendCategory(out, sub)
	}
	return out
}

// hetziSearchRequest is the structured query the proxy expects.
type hetziSearchRequest struct {
	Phrase     string `json:"Phrase"`
	PageNumber int    `json:"PageNumber"`
	PageSize   int    `json:"PageSize"`
}

// hetziSearchResponse groups items under their categories.
type hetziSearchResponse struct {
	Results struct {
		Categories []struct {
			Name  string      `json:"Name"`
			Items []hetziItem `json:"Items"`
		} `json:"Categories"`
	} `json:"Results"`
}

type hetziItem struct {
	ID           json.Number `json:"Id"`
	Name         string      `json:"Name"`
	Price        float64     `json:"Price"`
	Unit         string      `json:"UnitOfMeasure"`
	UnitSize     string      `json:"UnitSize"`
	PricePerUnit string      `json:"PricePerUnitDescription"`
	Image        string      `json:"Img"`
	URL          string      `json:"Url"`
}

// Search posts a free-text query and flattens the category-grouped items
// into raw product records. An empty response body is a known transient auth
// race upstream and is treated as a soft "no result", not an error.
func (h *Hetzi) Search(ctx context.Context, query string, page, pageSize int) ([]model.RawProduct, error) {
	reqBody, err := json.Marshal(hetziSearchRequest{Phrase: query, PageNumber: page, PageSize: pageSize})
	if err != nil {
		return nil, eris.Wrap(err, "search: marshal request")
	}

	resp, err := h.session.Do(ctx, http.MethodPost, h.BaseURL()+hetziSearchPath, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstream, "search: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, hetziBodyLimit))
	if err != nil {
		return nil, eris.Wrap(err, "search: read body")
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		h.log.Debug("empty search response body, treating as no result", zap.String("query", query))
		return nil, nil
	}

	var parsed hetziSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrapf(ErrUpstream, "search: malformed payload: %v", err)
	}

	var out []model.RawProduct
	skipped := 0
	for _, cat := range parsed.Results.Categories {
		for _, item := range cat.Items {
			// Partial records are skipped individually, never failing the page.
			if item.ID.String() == "" || item.Name == "" || item.Price <= 0 {
				skipped++
				continue
			}
			out = append(out, model.RawProduct{
				ExternalID:       item.ID.String(),
				Name:             item.Name,
				Price:            item.Price,
				Unit:             item.Unit,
				UnitSize:         item.UnitSize,
				PricePerUnitDesc: item.PricePerUnit,
				Image:            item.Image,
				URL:              item.URL,
				Category:         cat.Name,
			})
		}
	}
	if skipped > 0 {
		h.log.Debug("skipped malformed items", zap.Int("skipped", skipped), zap.String("query", query))
	}
	return out, nil
}
