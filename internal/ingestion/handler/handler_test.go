package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

type mapFetcher map[string]*catalog.Batch

func (m mapFetcher) Fetch(_ context.Context, src string) (*catalog.Batch, error) {
	if b, ok := m[src]; ok {
		return b, nil
	}
	if strings.HasPrefix(src, "bad://") {
		return nil, fmt.Errorf("%w: not a JSON array", apperrors.ErrInvalidInput)
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnavailable, src)
}

type fixture struct {
	router chi.Router
	store  *segment.Store
}

func newFixture(t *testing.T, maxBody int64, throttle func(http.Handler) http.Handler) *fixture {
	t.Helper()
	cfg := config.Default()
	store := segment.NewStore()
	engine := indexer.NewEngine(cfg.Indexer, cfg.Suggest, store, nil)
	fetcher := mapFetcher{
		"file:///products.json": {
			Source:   "file:///products.json",
			Products: []catalog.Product{{Title: "Red Running Shoe"}, {Title: "Blue Boot"}},
		},
	}
	pub := publisher.New(engine, fetcher, nil, publisher.Options{})
	r := chi.NewRouter()
	New(pub, maxBody).Routes(r, throttle)
	return &fixture{router: r, store: store}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestIndexURL(t *testing.T) {
	f := newFixture(t, 1<<20, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/index?fileUrl=file:///products.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Indexed file file:///products.json", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, 2, f.store.Stats().DocCount)
}

func TestIndexURLErrors(t *testing.T) {
	f := newFixture(t, 1<<20, nil)

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/index?fileUrl=bad://x", http.StatusBadRequest, "The file cannot be parsed: bad://x"},
		{"/index", http.StatusBadRequest, "The file cannot be parsed: "},
		{"/index?fileUrl=s3://gone/p.json", http.StatusBadGateway, "The file cannot be indexed: s3://gone/p.json"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodPost, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
	assert.Nil(t, f.store.Current())
}

func TestIndexBody(t *testing.T) {
	f := newFixture(t, 1<<20, nil)

	body := `[{"title":"Red Running Shoe","merchant":"Acme"}, 42, {"title":"Blue Boot"}, {}]`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestion.IndexResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "api", resp.Source)
	assert.Equal(t, 2, resp.Indexed)
	assert.Equal(t, 2, resp.Skipped)
	assert.Equal(t, uint64(1), resp.GenerationID)
}

func TestIndexBodyFromURL(t *testing.T) {
	f := newFixture(t, 1<<20, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/index?fileUrl=file:///products.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ingestion.IndexResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "file:///products.json", resp.Source)
	assert.Equal(t, 2, resp.Indexed)
}

func TestIndexBodyRejected(t *testing.T) {
	f := newFixture(t, 64, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"title":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid input: product file must contain a JSON array","code":"INVALID_INPUT"}`, rec.Body.String())

	big := "[" + strings.Repeat(`{"title":"shoe"},`, 20) + `{"title":"shoe"}]`
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "body exceeds 64 bytes")
	assert.Nil(t, f.store.Current())
}

func TestStatusAndBuilds(t *testing.T) {
	f := newFixture(t, 1<<20, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/index/builds", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.do(httptest.NewRequest(http.MethodPost, "/index?fileUrl=s3://gone/p.json", nil))
	f.do(httptest.NewRequest(http.MethodPost, "/index?fileUrl=file:///products.json", nil))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/index/builds?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var builds []publisher.BuildRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&builds))
	require.Len(t, builds, 2)
	assert.Equal(t, publisher.StatusSuccess, builds[0].Status)
	assert.Equal(t, publisher.StatusFailed, builds[1].Status)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/index/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status publisher.IndexStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Building)
	assert.Equal(t, 2, status.Generation.DocCount)
	require.NotNil(t, status.LastBuild)
	assert.Equal(t, builds[0].BuildID, status.LastBuild.BuildID)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/index/builds?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexRoutesThrottled(t *testing.T) {
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f := newFixture(t, 1<<20, blocked)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/index?fileUrl=file:///products.json", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/index/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
