// Command searcher runs the product search service: the HTTP query and
// rebuild API, the optional Kafka index-request consumer, the Redis query
// cache and the analytics pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/server"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	indexOnStart := flag.String("index", "", "product file to index before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *indexOnStart); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config, indexOnStart string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"workers", cfg.Indexer.Workers,
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"postgres", cfg.Postgres.Enabled,
	)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port)
		if err := ms.Start(); err != nil {
			return err
		}
		defer ms.Shutdown(context.Background())
	}

	store := segment.NewStore()
	engine := indexer.NewEngine(cfg.Indexer, cfg.Suggest, store, m)
	exec := executor.New(store, cfg.Search)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := store.Stats()
		if !stats.Ready {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no generation published"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", stats.GenerationID, stats.DocCount),
		}
	})

	var (
		queryCache *cache.QueryCache
		invalidate publisher.Invalidator
		redisPing  func(context.Context) error
	)
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rc.Close()
			queryCache = cache.New(rc, cfg.Redis.CacheTTL, m)
			invalidate = queryCache
			redisPing = rc.Ping
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	checker.Register("redis", health.PingCheck(redisPing, false))

	var (
		history      publisher.History
		postgresPing func(context.Context) error
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build history kept in memory", "error", err)
		} else {
			defer db.Close()
			pgHistory, err := publisher.NewPostgresHistory(ctx, db)
			if err != nil {
				return fmt.Errorf("preparing build history: %w", err)
			}
			history = pgHistory
			postgresPing = db.Ping
		}
	}
	checker.Register("postgres", health.PingCheck(postgresPing, false))

	aggregator := analytics.NewAggregator()
	var (
		analyticsEvents kafka.Publisher
		completeEvents  kafka.Publisher
	)
	if cfg.Kafka.Enabled {
		ap := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer ap.Close()
		analyticsEvents = ap
		cp := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer cp.Close()
		completeEvents = cp
	}
	collector := analytics.NewCollector(analyticsEvents, aggregator, 0)
	// The collector outlives the signal context; Close flushes it after the
	// server has drained.
	collector.Start(context.WithoutCancel(ctx))

	fetcher := catalog.NewFetcher(cfg.Storage, nil).WithMetrics(m)
	checker.Register("storage", func(context.Context) health.ComponentHealth {
		breaker := fetcher.Breaker()
		if state := breaker.GetState(); state != resilience.StateClosed {
			msg := "circuit " + state.String()
			if wait := breaker.RetryAfter(); wait > 0 {
				msg += ", retry in " + wait.Round(time.Second).String()
			}
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	pub := publisher.New(engine, fetcher, history, publisher.Options{
		Events:  completeEvents,
		Cache:   invalidate,
		Tracker: collector,
	})

	var background sync.WaitGroup
	if cfg.Kafka.Enabled {
		requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests, consumer.HandleMessage(pub))
		background.Add(1)
		go func() {
			defer background.Done()
			if err := requests.Start(ctx); err != nil {
				slog.Error("index request consumer stopped", "error", err)
			}
		}()
	}

	limiter := ratelimit.New(cfg.RateLimit.IndexPerMinute, time.Minute)
	background.Add(1)
	go func() {
		defer background.Done()
		limiter.Cleanup(ctx, time.Minute)
	}()

	if indexOnStart != "" {
		resp, err := pub.IndexFromURL(ctx, indexOnStart)
		if err != nil {
			return fmt.Errorf("initial index of %s: %w", indexOnStart, err)
		}
		slog.Info("initial index published", "generation", resp.GenerationID, "indexed", resp.Indexed, "skipped", resp.Skipped)
	}

	router := server.NewRouter(server.Deps{
		Server:    cfg.Server,
		Metrics:   m,
		Search:    searchhandler.New(exec, store, queryCache, collector, m, cfg.Search),
		Index:     ingesthandler.New(pub, cfg.Server.MaxBodyBytes),
		Analytics: analytics.NewHandler(aggregator),
		Health:    checker,
		Limiter:   limiter,
	})
	srv := server.NewHTTPServer(fmt.Sprintf(":%d", cfg.Server.Port), router, cfg.Server)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("search service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slog.Error("server shutdown error", "error", serr)
	}
	background.Wait()
	// Handlers are done; the final analytics batch can be flushed.
	collector.Close()
	return err
}
