package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buy-smart/pricewatch/internal/config"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scraping and price-history HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env, cfg.History)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the scraping and history endpoints onto a chi router.
func buildRouter(env *scrapeEnv, histCfg config.HistoryConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/scrapers/sources", func(w http.ResponseWriter, req *http.Request) {
		type sourceInfo struct {
			Name     string     `json:"name"`
			BaseURL  string     `json:"base_url"`
			LastSeen *time.Time `json:"last_seen,omitempty"`
		}

		// Annotate registered adapters with catalog state where it exists.
		seen := make(map[string]*time.Time)
		if persisted, err := env.Store.ListSources(req.Context()); err == nil {
			for _, s := range persisted {
				seen[s.Name] = s.LastSeen
			}
		} else {
			zap.L().Warn("failed to list persisted sources", zap.Error(err))
		}

		out := make([]sourceInfo, 0)
		for _, s := range env.Registry.All() {
			out = append(out, sourceInfo{Name: s.Name(), BaseURL: s.BaseURL(), LastSeen: seen[s.Name()]})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/scrapers/search", func(w http.ResponseWriter, req *http.Request) {
		q := strings.TrimSpace(req.URL.Query().Get("q"))
		if q == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		page := intParam(req, "page", 1)
		pageSize := intParam(req, "page_size", 50)
		register := req.URL.Query().Get("register") == "true"

		results, failures := searchAndRecord(req.Context(), env, q, page, pageSize, register)
		if len(failures) > 0 {
			zap.L().Warn("search completed with source failures",
				zap.String("query", q),
				zap.Int("failed", len(failures)),
			)
		}

		// All sources failing still yields 200 with empty results.
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   q,
			"results": results,
		})
	})

	r.Get("/scrapers/getCategories", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": env.Coord.Categories(req.Context()),
		})
	})

	r.Get("/prices/history", func(w http.ResponseWriter, req *http.Request) {
		ids, err := parseProductIDs(req.URL.Query()["product_ids"])
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(ids) == 0 {
			writeError(w, http.StatusBadRequest, "product_ids is required")
			return
		}
		minDays := intParam(req, "min_days", histCfg.MinDays)
		limit := intParam(req, "per_product_limit", histCfg.PerProductLimit)

		hist, err := env.History.History(req.Context(), ids, minDays, limit)
		if err != nil {
			zap.L().Error("history query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": hist})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam reads a positive integer query parameter, falling back on the
// default for absent or malformed values.
func intParam(req *http.Request, name string, def int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// parseProductIDs accepts repeated product_ids params, each holding one id
// or a comma-separated list.
func parseProductIDs(params []string) ([]int64, error) {
	var ids []int64
	for _, p := range params {
		for _, part := range strings.Split(p, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, eris.Errorf("invalid product id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
