// Package server assembles the HTTP API of the product search service.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/analytics"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ratelimit"
	searchhandler "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/health"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
)

// Deps are the handlers and shared components behind the router. Analytics
// and Limiter may be nil.
type Deps struct {
	Server    config.ServerConfig
	Metrics   *metrics.Metrics
	Search    *searchhandler.Handler
	Index     *ingesthandler.Handler
	Analytics *analytics.Handler
	Health    *health.Checker
	Limiter   *ratelimit.Limiter
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	POST /query                     legacy query, bare product list
//	GET  /api/v1/search             query with the full result envelope
//	POST /index                     legacy rebuild from ?fileUrl=
//	POST /api/v1/index              rebuild from a JSON body or ?fileUrl=
//	GET  /api/v1/index/status       serving generation and last build
//	GET  /api/v1/index/builds       recent builds
//	GET  /api/v1/cache/stats        query cache counters
//	POST /api/v1/cache/invalidate   drop cached results
//	GET  /api/v1/analytics          aggregated search analytics
//	GET  /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RealIP, RequestID, Recoverer, AccessLog, Metrics, CORS, then Timeout
//	on query routes and the rate limiter on rebuild routes
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(pkgmw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(pkgmw.AccessLog)
	r.Use(pkgmw.Metrics(d.Metrics))
	r.Use(pkgmw.CORS(pkgmw.DefaultCORSConfig(d.Server.CORSOrigins)))

	r.Get("/health/live", d.Health.LiveHandler())
	r.Get("/health/ready", d.Health.ReadyHandler())

	r.Group(func(r chi.Router) {
		if d.Server.WriteTimeout > 0 {
			// Stay below the server write deadline so the 504 body is
			// still delivered.
			r.Use(pkgmw.Timeout(d.Server.WriteTimeout - d.Server.WriteTimeout/10))
		}
		d.Search.Routes(r)
		if d.Analytics != nil {
			r.Get("/api/v1/analytics", d.Analytics.Stats)
		}
	})

	// Rebuilds run for as long as the product file takes; they are bounded
	// by the storage fetch timeout instead.
	var throttle func(http.Handler) http.Handler
	if d.Limiter != nil {
		throttle = ratelimit.Middleware(d.Limiter, d.Metrics)
	}
	d.Index.Routes(r, throttle)
	return r
}

// NewHTTPServer wraps handler with the configured timeouts.
func NewHTTPServer(addr string, handler http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: min(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout:      cfg.WriteTimeout,
	}
}
