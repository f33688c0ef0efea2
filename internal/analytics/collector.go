package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/goleaf/newsblog-search/pkg/kafka"
)

var (
	// ErrBufferFull is returned by Track when the event was dropped.
	ErrBufferFull = errors.New("analytics buffer full")
	// ErrCollectorClosed is returned by Track after Close.
	ErrCollectorClosed = errors.New("analytics collector closed")
)

// Publisher writes a batch of events to the analytics topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the in-memory buffer and the flush cadence.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events on a channel and publishes them in batches from
// a single goroutine, so Track never waits on the broker.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan Event
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan Event, cfg.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publishing loop. It runs until ctx is cancelled or
// Close is called, then flushes whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.cfg.BatchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
			}
			batch = batch[:0]
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.finalFlush(flush)
					return
				}
				batch = append(batch, kafka.Event{Key: string(event.Type), Value: event})
				if len(batch) >= c.cfg.BatchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				c.drainInto(&batch)
				c.finalFlush(flush)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

// Track enqueues an event without blocking. A full buffer drops the event.
func (c *Collector) Track(event Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCollectorClosed
	}
	select {
	case c.eventCh <- event:
		return nil
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "type", event.Type)
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for the final flush. Later
// Track calls return ErrCollectorClosed. Close is idempotent.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainInto(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: string(event.Type), Value: event})
		default:
			return
		}
	}
}

func (c *Collector) finalFlush(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flush(ctx)
}
