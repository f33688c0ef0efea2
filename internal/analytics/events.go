// Package analytics carries search telemetry out of the request path. The
// search core only ever writes to a Sink; nothing it records is read back
// into scoring.
package analytics

import "time"

type EventType string

const (
	EventQuery        EventType = "query"
	EventCacheHit     EventType = "cache_hit"
	EventCacheMiss    EventType = "cache_miss"
	EventSlowQuery    EventType = "slow_query"
	EventIndexRebuilt EventType = "index_rebuilt"
)

// Metadata is free-form context attached to query events (filters, index
// type, whether the fallback path answered).
type Metadata map[string]any

// Event is the wire format published to the analytics topic.
type Event struct {
	Type        EventType `json:"type"`
	IndexType   string    `json:"index_type,omitempty"`
	Query       string    `json:"query,omitempty"`
	ResultCount int       `json:"result_count"`
	DurationMs  float64   `json:"duration_ms"`
	Entries     int       `json:"entries,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
