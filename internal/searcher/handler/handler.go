// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/tracing"
)

const (
	ModeVSM = "vsm"
	ModeLSA = "lsa"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int) *executor.Response
	ExecuteLSA(ctx context.Context, query string, limit int) (*executor.Response, error)
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	generation   func() uint64
	defaultLimit int
	maxResults   int
	timeout      time.Duration
	adminGuard   func(http.Handler) http.Handler
	logger       *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithGeneration supplies the serving LSA model generation, which is part
// of the cache key for lsa searches.
func WithGeneration(gen func() uint64) Option {
	return func(h *Handler) { h.generation = gen }
}

func WithLimits(defaultLimit, maxResults int) Option {
	return func(h *Handler) {
		if defaultLimit > 0 {
			h.defaultLimit = defaultLimit
		}
		if maxResults > 0 {
			h.maxResults = maxResults
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithAdminGuard wraps the routes that mutate server state.
func WithAdminGuard(guard func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.adminGuard = guard }
}

func New(exec SearchExecutor, opts ...Option) *Handler {
	h := &Handler{
		executor:     exec,
		generation:   func() uint64 { return 0 },
		defaultLimit: 10,
		maxResults:   executor.DefaultCutoff,
		logger:       slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/lsa", h.SearchLSA)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	var invalidate http.Handler = http.HandlerFunc(h.CacheInvalidate)
	if h.adminGuard != nil {
		invalidate = h.adminGuard(invalidate)
	}
	mux.Handle("POST /api/v1/cache/invalidate", invalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeVSM)
}

func (h *Handler) SearchLSA(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeLSA)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, mode string) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search."+mode, logger.RequestID(r.Context()))
	defer span.Finish()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	query := params.Get("q")

	limit := h.defaultLimit
	if limitStr := params.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	compute := func() (*executor.Response, error) {
		return resilience.WithTimeoutValue(ctx, h.timeout, "search", func(ctx context.Context) (*executor.Response, error) {
			if mode == ModeLSA {
				return h.executor.ExecuteLSA(ctx, query, limit)
			}
			return h.executor.Execute(ctx, query, limit), nil
		})
	}

	var (
		result   *executor.Response
		err      error
		cacheHit bool
	)
	if h.cache != nil {
		key := cache.Key{Mode: mode, Query: query, Limit: limit}
		if mode == ModeLSA {
			key.Generation = h.generation()
		}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	elapsed := time.Since(start)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "mode", mode, "status", status, "error", err)
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		h.writeError(w, status, errorMessage(status))
		return
	}

	span.SetAttr("method", string(result.Method))
	span.SetAttr("cache_hit", cacheHit)
	log.Info("search completed",
		"query", query,
		"mode", mode,
		"method", result.Method,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.record(mode, result, cacheHit, elapsed)
	if h.collector != nil {
		h.collector.Track(analytics.SearchEvent{
			Query:     query,
			Mode:      mode,
			Method:    string(result.Method),
			Tokens:    result.Tokens,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: float64(elapsed.Microseconds()) / 1000,
			CacheHit:  cacheHit,
			Fallback:  result.Method == executor.MethodFallback,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) record(mode string, result *executor.Response, cacheHit bool, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(string(result.Method)).Inc()
	if result.Method == executor.MethodFallback {
		h.metrics.FallbackTotal.Inc()
	}
	cacheStatus := "none"
	if h.cache != nil {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	h.metrics.SearchLatency.WithLabelValues(mode, cacheStatus).Observe(elapsed.Seconds())
	h.metrics.SearchResultsCount.WithLabelValues(mode).Observe(float64(len(result.Results)))
}

func errorMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "lsa artifacts are not loaded"
	case http.StatusGatewayTimeout:
		return "search timed out"
	default:
		return "search failed"
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops cached responses, for one mode when ?mode= is given.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode != "" && mode != ModeVSM && mode != ModeLSA {
		h.writeError(w, http.StatusBadRequest, "mode must be vsm or lsa")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context(), mode)
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
