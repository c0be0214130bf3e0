// Package handler exposes the query engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
)

// DidYouMeanHeader carries the suggestion on empty legacy query responses.
const DidYouMeanHeader = "X-Did-You-Mean"

type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
}

type Handler struct {
	searcher     Searcher
	store        *segment.Store
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. queryCache, tracker and m may be nil.
func New(searcher Searcher, store *segment.Store, queryCache *cache.QueryCache, tracker analytics.Tracker, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	if tracker == nil {
		tracker = analytics.Discard
	}
	return &Handler{
		searcher:     searcher,
		store:        store,
		cache:        queryCache,
		tracker:      tracker,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/query", h.Query)
	r.Get("/api/v1/search", h.Search)
	r.Get("/api/v1/cache/stats", h.CacheStats)
	r.Post("/api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=&limit= with the full result envelope.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.reject(r.Context(), query, err)
		h.writeError(w, err)
		return
	}
	result, err := h.run(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Query serves POST /query?queryString=&limit=. The body is the bare list of
// matching products; when it is empty the suggestion (possibly "") travels
// in the X-Did-You-Mean header. Errors answer an empty list.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	query := r.FormValue("queryString")
	limit, err := h.parseLimit(r.FormValue("limit"))
	if err != nil {
		h.reject(r.Context(), query, err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), []catalog.Product{})
		return
	}
	result, err := h.run(r.Context(), query, limit)
	if err != nil {
		h.writeJSON(w, apperrors.HTTPStatusCode(err), []catalog.Product{})
		return
	}
	products := make([]catalog.Product, len(result.Hits))
	for i, hit := range result.Hits {
		products[i] = hit.Product()
	}
	if len(products) == 0 {
		w.Header().Set(DidYouMeanHeader, result.Suggestion)
	}
	h.writeJSON(w, http.StatusOK, products)
}

// run executes query through the cache when one is configured and records
// metrics and analytics.
func (h *Handler) run(ctx context.Context, query string, limit int) (*executor.SearchResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	cacheStatus := "disabled"
	if h.cache != nil && limit > 0 {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, h.generation(), query, limit, func() (*executor.SearchResult, error) {
			return h.searcher.Search(ctx, query, limit)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.searcher.Search(ctx, query, limit)
	}
	latency := time.Since(start)

	event := h.event(ctx, query, limit, latency, cacheHit)
	if err != nil {
		h.fail(ctx, event, cacheStatus, latency, err)
		return nil, err
	}
	// Cached and shared results may come from an equivalent spelling.
	if result.Query != query {
		cp := *result
		cp.Query = query
		result = &cp
	}

	event.TotalHits = result.TotalHits
	event.Returned = len(result.Hits)
	event.Suggestion = result.Suggestion
	event.GenerationID = result.GenerationID
	h.tracker.Track(event)

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, latency, result)
	log.Info("search completed",
		"query", query,
		"generation", result.GenerationID,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	return result, nil
}

func (h *Handler) event(ctx context.Context, query string, limit int, latency time.Duration, cacheHit bool) analytics.SearchEvent {
	return analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     query,
		Limit:     limit,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
}

// reject records a request refused before it reached the executor, such as
// an unparsable limit, the same way as a failed search.
func (h *Handler) reject(ctx context.Context, query string, err error) {
	h.fail(ctx, h.event(ctx, query, 0, 0, false), "disabled", 0, err)
}

func (h *Handler) fail(ctx context.Context, event analytics.SearchEvent, cacheStatus string, latency time.Duration, err error) {
	event.Error = apperrors.Code(err)
	h.tracker.Track(event)
	h.observe("error", cacheStatus, latency, nil)
	log := logger.FromContext(ctx)
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		log.Error("search failed", "query", event.Query, "error", err)
	} else {
		log.Info("search rejected", "query", event.Query, "error", err)
	}
}

func (h *Handler) observe(resultType, cacheStatus string, latency time.Duration, result *executor.SearchResult) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	if result == nil {
		return
	}
	h.metrics.SearchResultsCount.Observe(float64(len(result.Hits)))
	if result.TotalHits == 0 {
		outcome := "none"
		if result.Suggestion != "" {
			outcome = "found"
		}
		h.metrics.SuggestionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) generation() uint64 {
	if g := h.store.Current(); g != nil {
		return g.ID()
	}
	return 0
}

// parseLimit applies the default for an absent limit and caps large ones.
// Non-positive values are left to the executor, which rejects them.
func (h *Handler) parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return min(h.defaultLimit, h.maxResults), nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", apperrors.ErrInvalidLimit, raw)
	}
	return min(limit, h.maxResults), nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "enabled",
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrTimeout) {
		message = "search failed"
	}
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  apperrors.Code(err),
	})
}
