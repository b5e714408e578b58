package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
)

// Collector buffers search events off the request path and publishes them in
// batches, when the batch is full or every flush interval. Tracking never
// blocks: events are dropped when the buffer is full.
type Collector struct {
	publisher     kafka.Publisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewCollector(publisher kafka.Publisher, cfg config.AnalyticsConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan SearchEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// loop to exit.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: event.Mode, Value: event})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			batch = c.drainRemaining(batch)
			c.finalFlush(batch)
			return
		}
	}
}

func (c *Collector) drainRemaining(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.Mode, Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, batch); len(rest) > 0 {
		c.logger.Error("analytics events lost on shutdown", "events", len(rest))
	}
}

// flush publishes batch and returns the slice to keep buffering into. Failed
// batches are kept for the next attempt, up to three batches' worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		if limit := c.batchSize * 3; len(batch) > limit {
			dropped := len(batch) - limit
			c.dropped.Add(int64(dropped))
			batch = batch[dropped:]
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		return batch
	}
	c.logger.Debug("batch flushed", "events", len(batch))
	return batch[:0]
}
