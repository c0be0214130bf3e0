package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/kafka"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
	maxPending           = 3 * defaultBatchSize
)

// Collector buffers events, feeds them to an Aggregator and publishes them
// to Kafka in batches. Either destination may be nil.
type Collector struct {
	producer      kafka.Publisher
	aggregator    *Aggregator
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(producer kafka.Publisher, aggregator *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		producer:      producer,
		aggregator:    aggregator,
		eventCh:       make(chan any, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the delivery loop. It runs until ctx is cancelled or Close
// is called, then flushes what is buffered.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"kafka", c.producer != nil,
	)
}

// Track enqueues event, dropping it when the buffer is full.
func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	pending := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.shutdown(pending)
				return
			}
			pending = c.accept(ctx, pending, event)
		case <-ticker.C:
			pending = c.flush(ctx, pending)
		case <-ctx.Done():
			c.drain(pending)
			return
		}
	}
}

func (c *Collector) accept(ctx context.Context, pending []kafka.Event, event any) []kafka.Event {
	if c.aggregator != nil {
		c.aggregator.Record(event)
	}
	if c.producer == nil {
		return pending
	}
	pending = append(pending, kafka.Event{Key: eventKey(event), Value: event})
	if len(pending) >= c.batchSize {
		pending = c.flush(ctx, pending)
	}
	return pending
}

// flush publishes pending. On failure the batch is kept for the next
// attempt, bounded by maxPending.
func (c *Collector) flush(ctx context.Context, pending []kafka.Event) []kafka.Event {
	if len(pending) == 0 || c.producer == nil {
		return pending
	}
	if err := c.producer.PublishBatch(ctx, pending); err != nil {
		c.logger.Error("analytics flush failed", "events", len(pending), "error", err)
		if len(pending) > maxPending {
			c.logger.Warn("analytics events dropped", "dropped", len(pending)-maxPending)
			pending = pending[len(pending)-maxPending:]
		}
		return pending
	}
	c.logger.Debug("analytics batch flushed", "events", len(pending))
	return pending[:0]
}

func (c *Collector) drain(pending []kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.shutdown(pending)
				return
			}
			pending = c.accept(context.Background(), pending, event)
		default:
			c.shutdown(pending)
			return
		}
	}
}

func (c *Collector) shutdown(pending []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, pending); len(rest) > 0 {
		c.logger.Warn("analytics events lost on shutdown", "events", len(rest))
	}
}

func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return string(EventSearch)
	case IndexEvent:
		return e.BuildID
	default:
		return "analytics"
	}
}
