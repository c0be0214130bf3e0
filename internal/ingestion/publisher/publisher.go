// Package publisher drives a complete index rebuild: it fetches and decodes
// the product file, rebuilds the index, records the build and announces the
// new generation.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

// Fetcher loads a product file.
type Fetcher interface {
	Fetch(ctx context.Context, src string) (*catalog.Batch, error)
}

// Invalidator drops cached query results after a publish.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Options holds the optional collaborators of a Publisher.
type Options struct {
	// Events receives an IndexCompleteEvent for every published generation.
	Events  kafka.Publisher
	Cache   Invalidator
	Tracker analytics.Tracker
}

type Publisher struct {
	engine  *indexer.Engine
	fetcher Fetcher
	history History
	events  kafka.Publisher
	cache   Invalidator
	tracker analytics.Tracker
	logger  *slog.Logger
}

// New creates a Publisher. A nil history keeps the last 100 builds in memory.
func New(engine *indexer.Engine, fetcher Fetcher, history History, opts Options) *Publisher {
	if history == nil {
		history = NewMemoryHistory(100)
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.Discard
	}
	return &Publisher{
		engine:  engine,
		fetcher: fetcher,
		history: history,
		events:  opts.Events,
		cache:   opts.Cache,
		tracker: opts.Tracker,
		logger:  slog.Default().With("component", "publisher"),
	}
}

// IndexFromURL rebuilds the index from the product file at src.
func (p *Publisher) IndexFromURL(ctx context.Context, src string) (*ingestion.IndexResponse, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "fileUrl is required")
	}
	started := time.Now()
	batch, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		p.finish(ctx, BuildRecord{
			BuildID:   uuid.NewString(),
			Source:    src,
			Status:    statusOf(err),
			Error:     err.Error(),
			StartedAt: started,
		}, nil)
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}
	return p.index(ctx, src, batch.Products, batch.Skipped, started)
}

// IndexProducts rebuilds the index from an in-memory batch.
func (p *Publisher) IndexProducts(ctx context.Context, source string, products []catalog.Product) (*ingestion.IndexResponse, error) {
	return p.index(ctx, source, products, 0, time.Now())
}

// IndexBatch rebuilds the index from a decoded product file; elements the
// decoder skipped are reported as skipped records.
func (p *Publisher) IndexBatch(ctx context.Context, batch *catalog.Batch) (*ingestion.IndexResponse, error) {
	return p.index(ctx, batch.Source, batch.Products, batch.Skipped, time.Now())
}

func (p *Publisher) index(ctx context.Context, source string, products []catalog.Product, decodeSkipped int, started time.Time) (*ingestion.IndexResponse, error) {
	log := logger.FromContext(ctx).With("component", "publisher", "source", source)
	stats, err := p.engine.Rebuild(ctx, products)
	if err != nil {
		if errors.Is(err, apperrors.ErrBuildInProgress) {
			log.Warn("rebuild rejected", "error", err)
			return nil, err
		}
		p.finish(ctx, BuildRecord{
			BuildID:   stats.BuildID,
			Source:    source,
			Status:    statusOf(err),
			Skipped:   decodeSkipped,
			Error:     err.Error(),
			StartedAt: started,
		}, nil)
		return nil, err
	}

	rec := BuildRecord{
		BuildID:      stats.BuildID,
		GenerationID: stats.GenerationID,
		Source:       source,
		Status:       StatusSuccess,
		Indexed:      stats.Indexed,
		Skipped:      stats.Skipped + decodeSkipped,
		Terms:        stats.Terms,
		StartedAt:    started,
	}
	p.finish(ctx, rec, &stats)
	log.Info("index published",
		"build_id", rec.BuildID,
		"generation", rec.GenerationID,
		"indexed", rec.Indexed,
		"skipped", rec.Skipped,
	)
	return &ingestion.IndexResponse{
		Source:       source,
		BuildID:      rec.BuildID,
		GenerationID: rec.GenerationID,
		Indexed:      rec.Indexed,
		Skipped:      rec.Skipped,
		Terms:        rec.Terms,
		DurationMs:   time.Since(started).Milliseconds(),
	}, nil
}

// finish records rec and, for published builds, announces the generation and
// invalidates the query cache. Failures here are logged, never returned: the
// generation is already live.
func (p *Publisher) finish(ctx context.Context, rec BuildRecord, stats *indexer.BuildStats) {
	rec.FinishedAt = time.Now()
	// Bookkeeping must not be skipped because the request was cancelled.
	ctx = context.WithoutCancel(ctx)

	if err := p.history.Record(ctx, rec); err != nil {
		p.logger.Error("failed to record build", "build_id", rec.BuildID, "error", err)
	}
	if stats != nil {
		if p.cache != nil {
			if err := p.cache.Invalidate(ctx); err != nil {
				p.logger.Error("cache invalidation failed", "generation", rec.GenerationID, "error", err)
			}
		}
		if p.events != nil {
			err := p.events.Publish(ctx, kafka.Event{
				Key: rec.BuildID,
				Value: ingestion.IndexCompleteEvent{
					BuildID:      rec.BuildID,
					GenerationID: rec.GenerationID,
					Source:       rec.Source,
					Indexed:      rec.Indexed,
					Skipped:      rec.Skipped,
					PublishedAt:  rec.FinishedAt.UTC(),
				},
			})
			if err != nil {
				p.logger.Error("failed to publish index-complete event", "build_id", rec.BuildID, "error", err)
			}
		}
	}
	p.tracker.Track(analytics.IndexEvent{
		Type:         analytics.EventIndexBuild,
		BuildID:      rec.BuildID,
		GenerationID: rec.GenerationID,
		Source:       rec.Source,
		Status:       rec.Status,
		Indexed:      rec.Indexed,
		Skipped:      rec.Skipped,
		DurationMs:   rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
		Error:        rec.Error,
		Timestamp:    rec.FinishedAt.UTC(),
	})
}

// IndexStatus reports the serving generation and whether a rebuild runs.
type IndexStatus struct {
	Building   bool          `json:"building"`
	Generation segment.Stats `json:"generation"`
	LastBuild  *BuildRecord  `json:"last_build,omitempty"`
}

func (p *Publisher) Status(ctx context.Context) IndexStatus {
	status := IndexStatus{
		Building:   p.engine.Building(),
		Generation: p.engine.Store().Stats(),
	}
	recent, err := p.history.Recent(ctx, 1)
	if err != nil {
		p.logger.Error("failed to load last build", "error", err)
	} else if len(recent) > 0 {
		status.LastBuild = &recent[0]
	}
	return status
}

// Builds returns up to n recent build records, newest first.
func (p *Publisher) Builds(ctx context.Context, n int) ([]BuildRecord, error) {
	return p.history.Recent(ctx, n)
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrBuildInProgress):
		return StatusRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusFailed
	}
}
