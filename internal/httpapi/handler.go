package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fibermap/core-go/internal/db"
	"fibermap/core-go/internal/locator"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/topology"
)

// Options carries the collaborators the router needs beyond the pool.
// Zero values are fine: a nil locator is built from the pool when one is
// open, and the layout options fall back to topology.DefaultOptions.
type Options struct {
	Metrics      *metrics.Metrics
	Locator      *locator.Service
	CORSOrigins  []string
	Layout       topology.Options
	SampleWindow time.Duration
}

type Handler struct {
	log          zerolog.Logger
	pool         *db.Pool
	metrics      *metrics.Metrics
	locator      *locator.Service
	topology     TopologyStore
	corsOrigins  []string
	layout       topology.Options
	sampleWindow time.Duration
}

func NewHandler(log zerolog.Logger, pool *db.Pool, opts Options) *Handler {
	h := &Handler{
		log:          log,
		pool:         pool,
		metrics:      opts.Metrics,
		locator:      opts.Locator,
		corsOrigins:  opts.CORSOrigins,
		layout:       opts.Layout,
		sampleWindow: opts.SampleWindow,
	}
	if h.sampleWindow <= 0 {
		h.sampleWindow = defaultSampleWindow
	}
	if q := pool.Queries(); q != nil {
		h.topology = q
		if h.locator == nil {
			h.locator = locator.New(log, q, locator.Options{Metrics: opts.Metrics})
		}
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/map", func(r chi.Router) {
				r.Get("/nearest-cabinet", h.handleNearestCabinet)
				r.Get("/plan-options", h.handlePlanOptions)
				r.Get("/plan-route", h.handlePlanRoute)
			})

			r.Route("/topology", func(r chi.Router) {
				r.Get("/layout", h.handleGetTopologyLayout)
				r.Post("/layout", h.handlePostTopologyLayout)
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route pattern keeps metric cardinality bounded.
		pattern := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureLocator(w http.ResponseWriter) bool {
	if h.locator == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureTopology(w http.ResponseWriter) bool {
	if h.topology == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}
