package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/goleaf/newsblog-search/pkg/logger"
)

// Sink receives search telemetry. Implementations must not block the
// caller; errors are returned only so the caller can log them.
type Sink interface {
	LogQuery(ctx context.Context, query string, resultCount int, duration time.Duration, meta Metadata) error
	LogCacheHit(ctx context.Context, indexType, query string) error
	LogCacheMiss(ctx context.Context, indexType, query string) error
	LogSlowQuery(ctx context.Context, query string, duration time.Duration, meta Metadata) error
	LogIndexRebuilt(ctx context.Context, indexType string, entries int, duration time.Duration) error
}

// Tracker accepts fully built events. Sinks built on a Tracker only need to
// implement Track.
type Tracker interface {
	Track(event Event) error
}

// eventSink adapts a Tracker to Sink.
type eventSink struct {
	t   Tracker
	now func() time.Time
}

// NewSink returns a Sink that turns every call into an Event for t.
func NewSink(t Tracker) Sink {
	return eventSink{t: t, now: time.Now}
}

func (s eventSink) emit(ctx context.Context, e Event) error {
	e.RequestID = logger.RequestID(ctx)
	e.Timestamp = s.now().UTC()
	return s.t.Track(e)
}

func (s eventSink) LogQuery(ctx context.Context, query string, resultCount int, d time.Duration, meta Metadata) error {
	indexType, _ := meta["index_type"].(string)
	return s.emit(ctx, Event{Type: EventQuery, IndexType: indexType, Query: query, ResultCount: resultCount, DurationMs: millis(d), Metadata: meta})
}

func (s eventSink) LogCacheHit(ctx context.Context, indexType, query string) error {
	return s.emit(ctx, Event{Type: EventCacheHit, IndexType: indexType, Query: query})
}

func (s eventSink) LogCacheMiss(ctx context.Context, indexType, query string) error {
	return s.emit(ctx, Event{Type: EventCacheMiss, IndexType: indexType, Query: query})
}

func (s eventSink) LogSlowQuery(ctx context.Context, query string, d time.Duration, meta Metadata) error {
	indexType, _ := meta["index_type"].(string)
	return s.emit(ctx, Event{Type: EventSlowQuery, IndexType: indexType, Query: query, DurationMs: millis(d), Metadata: meta})
}

func (s eventSink) LogIndexRebuilt(ctx context.Context, indexType string, entries int, d time.Duration) error {
	return s.emit(ctx, Event{Type: EventIndexRebuilt, IndexType: indexType, Entries: entries, DurationMs: millis(d)})
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogQuery(context.Context, string, int, time.Duration, Metadata) error { return nil }
func (Nop) LogCacheHit(context.Context, string, string) error                    { return nil }
func (Nop) LogCacheMiss(context.Context, string, string) error                   { return nil }
func (Nop) LogSlowQuery(context.Context, string, time.Duration, Metadata) error  { return nil }
func (Nop) LogIndexRebuilt(context.Context, string, int, time.Duration) error    { return nil }

// Recorder keeps events in memory. It backs tests and single-node runs
// without a broker.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
