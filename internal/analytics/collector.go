package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/esgpulse/esg-analytics/pkg/kafka"
)

const eventKey = "analytics"

// Sink receives batches of events. *kafka.Producer and *Aggregator both
// implement it.
type Sink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events off the request path and flushes them to a Sink
// in batches, when a batch fills or the flush interval passes.
type Collector struct {
	sink          Sink
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	done          chan struct{}
	logger        *slog.Logger
}

func NewCollector(sink Sink, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		sink:          sink,
		eventCh:       make(chan Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the flush loop until ctx is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.sink.PublishBatch(ctx, batch); err != nil {
			c.dropped.Add(int64(len(batch)))
			c.logger.Error("analytics batch lost", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, kafka.Event{Key: eventKey, Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.drain(&batch)
			flush(drainCtx)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: eventKey, Value: event})
		default:
			return
		}
	}
}

// Track enqueues event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Track(event Event) {
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were lost.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close flushes buffered events and stops the loop. Track must not be
// called afterwards.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}
