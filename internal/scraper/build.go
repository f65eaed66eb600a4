package scraper

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/buy-smart/pricewatch/internal/config"
	"github.com/buy-smart/pricewatch/internal/session"
)

// hetziCookieName carries the guest token issued by the proxy init endpoint.
const hetziCookieName = "guest-session"

// hetziBootstrapPath is the session initialization endpoint.
const hetziBootstrapPath = "/proxy/api/Session/init"

// BuildRegistry constructs a registry from the source definitions, wiring a
// dedicated session manager into each adapter kind that needs one.
func BuildRegistry(defs []config.SourceDef, scfg config.SessionConfig) (*Registry, error) {
	reg := NewRegistry()
	timeout := time.Duration(scfg.TimeoutSecs) * time.Second

	for _, def := range defs {
		switch def.Kind {
		case "hetzi":
			sess := session.New(session.Config{
				Name:           def.Name,
				BaseURL:        def.BaseURL,
				BootstrapPath:  hetziBootstrapPath,
				CookieName:     hetziCookieName,
				UserAgent:      scfg.UserAgent,
				RefreshMargin:  time.Duration(scfg.RefreshMarginSecs) * time.Second,
				Timeout:        timeout,
				RequestsPerSec: scfg.RequestsPerSec,
			})
			reg.Register(NewHetzi(def.Name, sess))
		case "shufersal":
			reg.Register(NewShufersal(def.Name, def.BaseURL, timeout, scfg.UserAgent))
		default:
			return nil, eris.Errorf("scraper: unknown source kind %q for %q", def.Kind, def.Name)
		}
	}
	return reg, nil
}
