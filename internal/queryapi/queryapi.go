// Package queryapi implements spec §4.G's storage query surface: read
// endpoints over the document store, plus the /health and /metrics
// operational endpoints, wired with the same middleware chain shape
// the teacher gateway's router uses (CORS → request ID → recoverer →
// logger → body limit).
package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/gateway"
	appmw "github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/middleware"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/metrics"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

const (
	defaultTickLimit  = 100
	maxTickLimit      = 2000
	defaultChainLimit = 10
	maxChainLimit     = 500
)

type Server struct {
	cache    store.Cache
	docStore store.DocStore
	hub      *gateway.Hub
	metrics  *metrics.Registry
	logger   zerolog.Logger
}

func NewServer(cache store.Cache, docStore store.DocStore, hub *gateway.Hub, reg *metrics.Registry, logger zerolog.Logger) *Server {
	return &Server{cache: cache, docStore: docStore, hub: hub, metrics: reg, logger: logger.With().Str("component", "query_api").Logger()}
}

// Router assembles the chi router: health, historical reads, the
// operator metrics feed, and the websocket upgrade endpoint.
func (s *Server) Router(maxBodyBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(appmw.CORS)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(appmw.RequestLogger(s.logger))
	r.Use(appmw.MaxBodySize(maxBodyBytes))

	r.Get("/health", s.handleHealth)
	r.Get("/products", s.handleProducts)
	r.Get("/underlying/{product}", s.handleUnderlyingHistory)
	r.Get("/option/chain/{product}", s.handleChainHistory)
	r.Get("/option/expiries/{product}", s.handleExpiries)
	r.Get("/option/quote/{symbol}", s.handleLatestQuote)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if pingable, ok := s.cache.(interface{ Ping(context.Context) error }); ok {
		if err := pingable.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.docStore.Products(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleExpiries(w http.ResponseWriter, r *http.Request) {
	product := model.Product(chi.URLParam(r, "product"))
	expiries, err := s.docStore.Expiries(r.Context(), product)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "expiries": expiries})
}

// handleLatestQuote serves the fast-path latest:option:{symbol} slot
// the ingest subscriber writes on every standalone quote update,
// ahead of the next full chain enrichment cycle.
func (s *Server) handleLatestQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	raw, err := s.cache.Get(r.Context(), model.KeyLatestOption(symbol))
	if err != nil {
		if err == store.ErrAbsent {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	var quote model.OptionQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleUnderlyingHistory(w http.ResponseWriter, r *http.Request) {
	product := model.Product(chi.URLParam(r, "product"))
	from, to, err := parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := appmw.ParseLimit(r, defaultTickLimit, maxTickLimit)

	ticks, err := s.docStore.ListUnderlyingTicks(r.Context(), product, from, to, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "count": len(ticks), "ticks": ticks})
}

func (s *Server) handleChainHistory(w http.ResponseWriter, r *http.Request) {
	product := model.Product(chi.URLParam(r, "product"))
	from, to, err := parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var expiry time.Time
	if v := r.URL.Query().Get("expiry"); v != "" {
		expiry, err = time.Parse("2006-01-02", v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	limit := appmw.ParseLimit(r, defaultChainLimit, maxChainLimit)

	chains, err := s.docStore.ListOptionChains(r.Context(), product, expiry, from, to, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "count": len(chains), "chains": chains})
}

func parseRange(r *http.Request) (from, to time.Time, err error) {
	to = time.Now().UTC()
	from = to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("start"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error().Err(err).Msg("query api request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
