// Package session maintains short-lived guest credentials for upstream
// shop APIs that issue a token via an init endpoint instead of API keys.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBootstrapFailed signals that the bootstrap call completed but the
// expected auth cookie was absent or unparseable. This usually means the
// upstream changed its auth flow.
var ErrBootstrapFailed = eris.New("session: bootstrap failed")

// Config holds the settings for one source's session manager.
type Config struct {
	Name           string
	BaseURL        string
	BootstrapPath  string
	CookieName     string
	UserAgent      string
	RefreshMargin  time.Duration
	Timeout        time.Duration
	RequestsPerSec float64
}

// Manager owns the HTTP client and guest token for one upstream source.
// The token is treated as a cache with TTL: it is refreshed when its
// remaining lifetime drops below the safety margin, and re-bootstrapped at
// most once when a request comes back unauthorized.
type Manager struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	mu         sync.Mutex
	token      string
	expiresIn  time.Duration
	acquiredAt time.Time
}

// guestCookie is the URL-encoded JSON payload carried by the auth cookie.
type guestCookie struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// New creates a session manager for one source. Each adapter owns its own
// Manager; no session state is shared across sources.
func New(cfg Config) *Manager {
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = 600 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pricewatch/1.0"
	}

	jar, _ := cookiejar.New(nil)
	return &Manager{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		log:     zap.L().With(zap.String("component", "session"), zap.String("source", cfg.Name)),
	}
}

// EnsureValid bootstraps a guest token if none is held or the current one is
// inside the refresh margin.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validLocked() {
		return nil
	}
	return m.bootstrapLocked(ctx)
}

// validLocked reports whether the held token still has more lifetime left
// than the safety margin. Callers must hold m.mu.
func (m *Manager) validLocked() bool {
	if m.token == "" {
		return false
	}
	remaining := m.expiresIn - time.Since(m.acquiredAt)
	return remaining > m.cfg.RefreshMargin
}

func (m *Manager) bootstrapLocked(ctx context.Context) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "session: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+m.cfg.BootstrapPath, nil)
	if err != nil {
		return eris.Wrap(err, "session: create bootstrap request")
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := m.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "session: bootstrap request")
	}
	defer resp.Body.Close() //nolint:errcheck

	cookie := findCookie(resp.Cookies(), m.cfg.CookieName)
	if cookie == nil {
		return eris.Wrapf(ErrBootstrapFailed, "cookie %q absent in bootstrap response (status %d)", m.cfg.CookieName, resp.StatusCode)
	}

	decoded, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return eris.Wrapf(ErrBootstrapFailed, "cookie %q not URL-encoded: %v", m.cfg.CookieName, err)
	}

	var gc guestCookie
	if err := json.Unmarshal([]byte(decoded), &gc); err != nil {
		return eris.Wrapf(ErrBootstrapFailed, "cookie %q payload not JSON: %v", m.cfg.CookieName, err)
	}
	if gc.AccessToken == "" || gc.ExpiresIn <= 0 {
		return eris.Wrapf(ErrBootstrapFailed, "cookie %q payload missing access_token or expires_in", m.cfg.CookieName)
	}

	m.token = gc.AccessToken
	m.expiresIn = time.Duration(gc.ExpiresIn) * time.Second
	m.acquiredAt = time.Now()

	m.log.Debug("guest token acquired", zap.Duration("expires_in", m.expiresIn))
	return nil
}

// Do issues an authenticated request. On an unauthorized response it forces
// exactly one re-bootstrap and one retry; any later failure is the caller's.
func (m *Manager) Do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	if err := m.EnsureValid(ctx); err != nil {
		return nil, err
	}

	resp, err := m.send(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	_ = resp.Body.Close()

	m.log.Info("unauthorized response, re-bootstrapping once", zap.Int("status", resp.StatusCode))

	m.mu.Lock()
	m.token = "" // invalidate so EnsureValid re-bootstraps
	err = m.bootstrapLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return m.send(ctx, method, rawURL, body)
}

func (m *Manager) send(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "session: rate limiter wait")
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, eris.Wrap(err, "session: create request")
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "session: %s %s", method, rawURL)
	}
	return resp, nil
}

// BaseURL returns the configured upstream base URL.
func (m *Manager) BaseURL() string { return m.cfg.BaseURL }

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
