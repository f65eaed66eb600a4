package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/model"
)

// Shufersal scrapes the Shufersal online shop by parsing its HTML listing
// pages. The site serves listings to anonymous visitors, so no guest-session
// bootstrap is needed; a plain client with a timeout is enough.
type Shufersal struct {
	name      string
	baseURL   string
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// NewShufersal creates the Shufersal adapter.
func NewShufersal(name, baseURL string, timeout time.Duration, userAgent string) *Shufersal {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "pricewatch/1.0"
	}
	return &Shufersal{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       zap.L().With(zap.String("component", "scraper"), zap.String("source", name)),
	}
}

func (s *Shufersal) Name() string    { return s.name }
func (s *Shufersal) BaseURL() string { return s.baseURL }

func (s *Shufersal) get(ctx context.Context, path string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstream, "get %s: status %d", path, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstream, "get %s: parse html: %v", path, err)
	}
	return doc, nil
}

// FetchCategories parses the category navigation menu into {id, name} pairs.
func (s *Shufersal) FetchCategories(ctx context.Context) ([]model.Category, error) {
	doc, err := s.get(ctx, "/online/he/categories")
	if err != nil {
		return nil, err
	}

	var out []model.Category
	doc.Find("a.categoryLink").Each(func(_ int, sel *goquery.Selection) {
		id, ok := sel.Attr("data-category-id")
		name := strings.TrimSpace(sel.Text())
		if !ok || id == "" || name == "" {
			return
		}
		out = append(out, model.Category{ID: id, Name: name})
	})

	if len(out) == 0 {
		return nil, eris.Wrap(ErrUpstream, "categories: no category links found")
	}
	return out, nil
}

// Search fetches one search results page and extracts the product tiles.
// Malformed tiles are skipped individually rather than failing the page.
func (s *Shufersal) Search(ctx context.Context, query string, page, pageSize int) ([]model.RawProduct, error) {
	path := fmt.Sprintf("/online/he/search?text=%s&page=%d&pageSize=%d",
		url.QueryEscape(query), page, pageSize)

	doc, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var out []model.RawProduct
	skipped := 0
	doc.Find("li.miglog-prod").Each(func(_ int, tile *goquery.Selection) {
		raw, ok := s.parseTile(tile)
		if !ok {
			skipped++
			return
		}
		out = append(out, raw)
	})
	if skipped > 0 {
		s.log.Debug("skipped malformed tiles", zap.Int("skipped", skipped), zap.String("query", query))
	}
	return out, nil
}

func (s *Shufersal) parseTile(tile *goquery.Selection) (model.RawProduct, bool) {
	externalID, ok := tile.Attr("data-product-code")
	if !ok || externalID == "" {
		return model.RawProduct{}, false
	}

	name := strings.TrimSpace(tile.Find(".miglog-prod-name").First().Text())
	if name == "" {
		return model.RawProduct{}, false
	}

	price, ok := parsePrice(tile.Find(".miglog-price").First().Text())
	if !ok {
		return model.RawProduct{}, false
	}

	href, _ := tile.Find("a").First().Attr("href")
	if href != "" && strings.HasPrefix(href, "/") {
		href = s.baseURL + href
	}
	img, _ := tile.Find("img").First().Attr("src")

	return model.RawProduct{
		ExternalID:       externalID,
		Name:             name,
		Price:            price,
		Unit:             strings.TrimSpace(tile.Find(".miglog-prod-unit").First().Text()),
		PricePerUnitDesc: strings.TrimSpace(tile.Find(".miglog-price-per-unit").First().Text()),
		Image:            img,
		URL:              href,
		Category:         strings.TrimSpace(tile.AttrOr("data-category", "")),
	}, true
}

// parsePrice strips currency symbols and whitespace from a price label.
func parsePrice(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	price, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
