// Package indexer builds complete index generations from product batches and
// publishes them into the segment store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/suggest"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/tracing"
)

// ctxCheckInterval is how many records a worker analyses between
// cancellation checks.
const ctxCheckInterval = 256

// BuildStats summarises a published generation.
type BuildStats struct {
	GenerationID uint64        `json:"generation_id"`
	BuildID      string        `json:"build_id"`
	Indexed      int           `json:"indexed"`
	Skipped      int           `json:"skipped"`
	Terms        int           `json:"terms"`
	Snapshot     string        `json:"snapshot,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Engine runs full rebuilds. At most one rebuild runs at a time; a second
// request fails immediately with ErrBuildInProgress.
type Engine struct {
	cfg         config.IndexerConfig
	suggestOpts suggest.Options
	store       *segment.Store
	ingestor    *ingestion.Ingestor
	writer      *segment.Writer
	sem         *semaphore.Weighted
	building    atomic.Bool
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// afterMerge runs between merge and publish; tests use it to hold a
	// build open.
	afterMerge func(ctx context.Context)
}

// NewEngine creates an Engine publishing into store. m may be nil.
func NewEngine(cfg config.IndexerConfig, suggestCfg config.SuggestConfig, store *segment.Store, m *metrics.Metrics) *Engine {
	e := &Engine{
		cfg: cfg,
		suggestOpts: suggest.Options{
			MinSimilarity: suggestCfg.MinSimilarity,
			NGramSize:     suggestCfg.NGramSize,
		},
		store:    store,
		ingestor: ingestion.NewIngestor(),
		sem:      semaphore.NewWeighted(1),
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
	if cfg.SnapshotDir != "" {
		e.writer = segment.NewWriter(cfg.SnapshotDir)
	}
	if m != nil {
		store.OnDiscard(func(uint64, time.Duration) {
			m.GenerationsDiscarded.Inc()
			m.LiveGenerations.Dec()
		})
	}
	return e
}

func (e *Engine) Store() *segment.Store {
	return e.store
}

// Building reports whether a rebuild is running.
func (e *Engine) Building() bool {
	return e.building.Load()
}

// Rebuild indexes products into a new generation and publishes it. The
// generation served before the call stays current if the build fails or ctx
// is cancelled; the returned stats then carry only the build id and elapsed
// time.
func (e *Engine) Rebuild(ctx context.Context, products []catalog.Product) (BuildStats, error) {
	if !e.sem.TryAcquire(1) {
		e.observe("rejected")
		return BuildStats{}, fmt.Errorf("%w: another rebuild is running", apperrors.ErrBuildInProgress)
	}
	defer e.sem.Release(1)
	e.building.Store(true)
	defer e.building.Store(false)

	start := time.Now()
	buildID := uuid.NewString()
	logger := e.logger.With("build_id", buildID)
	logger.Info("rebuild started", "records", len(products), "workers", e.workers(len(products)))

	stats, err := e.rebuild(ctx, buildID, products)
	if err != nil {
		status := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "canceled"
		}
		e.observe(status)
		logger.Error("rebuild failed", "status", status, "error", err, "elapsed", time.Since(start))
		return BuildStats{BuildID: buildID, Duration: time.Since(start)}, err
	}
	stats.Duration = time.Since(start)

	e.observe("success")
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(stats.Duration.Seconds())
		e.metrics.DocsIndexedTotal.Add(float64(stats.Indexed))
		e.metrics.DocsSkippedTotal.Add(float64(stats.Skipped))
		e.metrics.CurrentGeneration.Set(float64(stats.GenerationID))
		e.metrics.GenerationDocCount.Set(float64(stats.Indexed))
		e.metrics.LiveGenerations.Inc()
	}
	logger.Info("rebuild complete",
		"generation", stats.GenerationID,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"terms", stats.Terms,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (e *Engine) rebuild(ctx context.Context, buildID string, products []catalog.Product) (BuildStats, error) {
	ctx, root := tracing.Start(ctx, "rebuild")
	root.Set("build_id", buildID)
	root.Set("records", len(products))
	defer func() {
		root.End()
		root.Log(e.logger)
	}()

	_, span := tracing.Start(ctx, "analyze")
	partials, err := e.analyze(ctx, products)
	span.End()
	if err != nil {
		return BuildStats{}, err
	}
	_, span = tracing.Start(ctx, "merge")
	merged, err := index.Merge(ctx, partials, index.MergeOptions{
		MaxVocabularySize: e.cfg.MaxVocabularySize,
	})
	span.End()
	if err != nil {
		return BuildStats{}, fmt.Errorf("merging partial indexes: %w", err)
	}

	suggester := suggest.New(merged.Dictionaries[index.FieldCatchAll].DocFreqs(), e.suggestOpts)
	g := index.NewGeneration(e.store.NextGenerationID(), buildID, merged, suggester)
	stats := BuildStats{
		GenerationID: g.ID(),
		BuildID:      buildID,
		Indexed:      g.DocCount(),
		Skipped:      merged.Skipped,
		Terms:        g.TermCount(),
	}

	if e.afterMerge != nil {
		e.afterMerge(ctx)
	}
	if err := ctx.Err(); err != nil {
		g.Abandon()
		return BuildStats{}, err
	}

	if e.writer != nil {
		_, span = tracing.Start(ctx, "snapshot")
		path, err := e.writer.Write(g)
		span.End()
		if err != nil {
			g.Abandon()
			return BuildStats{}, fmt.Errorf("writing snapshot: %w", err)
		}
		stats.Snapshot = path
		if removed, err := segment.Prune(e.cfg.SnapshotDir, e.cfg.SnapshotKeep); err != nil {
			e.logger.Warn("pruning snapshots failed", "error", err)
		} else if removed > 0 {
			e.logger.Debug("pruned snapshots", "removed", removed)
		}
	}

	if err := ctx.Err(); err != nil {
		g.Abandon()
		return BuildStats{}, err
	}
	if err := e.store.Publish(g); err != nil {
		g.Abandon()
		return BuildStats{}, fmt.Errorf("publishing generation %d: %w", g.ID(), err)
	}
	return stats, nil
}

// analyze splits products into one contiguous chunk per worker and builds a
// private Partial for each. The returned slice is in chunk order.
func (e *Engine) analyze(ctx context.Context, products []catalog.Product) ([]*index.Partial, error) {
	workers := e.workers(len(products))
	if workers == 0 {
		return nil, ctx.Err()
	}
	chunk := (len(products) + workers - 1) / workers
	partials := make([]*index.Partial, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := min(lo+chunk, len(products))
		if lo >= hi {
			partials[w] = index.NewPartial()
			continue
		}
		g.Go(func() error {
			p := index.NewPartial()
			for i, product := range products[lo:hi] {
				if i%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				doc, err := e.ingestor.Ingest(product)
				if err != nil {
					p.Skip()
					e.logger.Debug("record skipped", "record", lo+i, "reason", err)
					continue
				}
				p.Add(doc.Product, doc.Fields)
			}
			partials[w] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return partials, nil
}

func (e *Engine) workers(records int) int {
	n := e.cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return min(n, records)
}

func (e *Engine) observe(status string) {
	if e.metrics != nil {
		e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}
