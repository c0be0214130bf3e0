// Package handler exposes index rebuilds and build status over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/publisher"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

// Indexer is the part of publisher.Publisher used by the handler.
type Indexer interface {
	IndexFromURL(ctx context.Context, src string) (*ingestion.IndexResponse, error)
	IndexBatch(ctx context.Context, batch *catalog.Batch) (*ingestion.IndexResponse, error)
	Status(ctx context.Context) publisher.IndexStatus
	Builds(ctx context.Context, n int) ([]publisher.BuildRecord, error)
}

type Handler struct {
	indexer      Indexer
	maxBodyBytes int64
	logger       *slog.Logger
}

func New(indexer Indexer, maxBodyBytes int64) *Handler {
	return &Handler{
		indexer:      indexer,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "ingestion-handler"),
	}
}

// Routes registers the rebuild endpoints, wrapped in throttle, and the
// read-only status endpoints.
func (h *Handler) Routes(r chi.Router, throttle func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if throttle != nil {
			r.Use(throttle)
		}
		r.Post("/index", h.IndexURL)
		r.Post("/api/v1/index", h.IndexBody)
	})
	r.Get("/api/v1/index/status", h.Status)
	r.Get("/api/v1/index/builds", h.Builds)
}

// IndexURL serves POST /index?fileUrl=. It answers plain text.
func (h *Handler) IndexURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileURL := r.FormValue("fileUrl")
	resp, err := h.indexer.IndexFromURL(ctx, fileURL)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("indexing failed", "file_url", fileURL, "error", err, "status_code", status)
		var msg string
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			msg = "The file cannot be parsed: " + fileURL
		case errors.Is(err, apperrors.ErrBuildInProgress):
			msg = "Another index build is in progress"
		default:
			msg = "The file cannot be indexed: " + fileURL
		}
		h.writeText(w, status, msg)
		return
	}
	logger.FromContext(ctx).Info("file indexed", "file_url", fileURL, "indexed", resp.Indexed, "skipped", resp.Skipped)
	h.writeText(w, http.StatusOK, "Indexed file "+fileURL)
}

// IndexBody serves POST /api/v1/index. The body is a JSON array of products
// unless a fileUrl query parameter names a product file instead.
func (h *Handler) IndexBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var resp *ingestion.IndexResponse
	var err error
	if src := r.URL.Query().Get("fileUrl"); src != "" {
		resp, err = h.indexer.IndexFromURL(ctx, src)
	} else {
		var products []catalog.Product
		var skipped int
		products, skipped, err = catalog.Decode(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
					"code":  apperrors.Code(apperrors.ErrInvalidInput),
				})
				return
			}
			h.writeError(w, err)
			return
		}
		resp, err = h.indexer.IndexBatch(ctx, &catalog.Batch{Source: "api", Products: products, Skipped: skipped})
	}
	if err != nil {
		logger.FromContext(ctx).Error("indexing failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.indexer.Status(r.Context()))
}

// Builds serves GET /api/v1/index/builds?limit=n, newest first.
func (h *Handler) Builds(w http.ResponseWriter, r *http.Request) {
	n := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, fmt.Errorf("%w: got %q", apperrors.ErrInvalidLimit, raw))
			return
		}
		n = min(parsed, 1000)
	}
	builds, err := h.indexer.Builds(r.Context(), n)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing builds failed", "error", err)
		h.writeError(w, err)
		return
	}
	if builds == nil {
		builds = []publisher.BuildRecord{}
	}
	h.writeJSON(w, http.StatusOK, builds)
}

func (h *Handler) writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
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
	if status == http.StatusInternalServerError {
		message = "indexing failed"
	}
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  apperrors.Code(err),
	})
}
