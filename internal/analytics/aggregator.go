package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/goleaf/newsblog-search/pkg/kafka"
)

// latency samples kept for percentiles; older samples are discarded.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries      int64            `json:"total_queries"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	CacheHitRate      float64          `json:"cache_hit_rate"`
	SlowQueryCount    int64            `json:"slow_query_count"`
	FallbackCount     int64            `json:"fallback_count"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	SlowQueries       []QueryCount     `json:"slow_queries"`
	IndexRebuilds     map[string]int64 `json:"index_rebuilds"`
	IndexEntries      map[string]int   `json:"index_entries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds analytics events into running statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      int64
	cacheHits         int64
	cacheMisses       int64
	slowQueries       int64
	fallbacks         int64
	zeroResults       int64
	latencies         []float64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	slowQueryCounts   map[string]int64
	indexRebuilds     map[string]int64
	indexEntries      map[string]int
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		slowQueryCounts:   make(map[string]int64),
		indexRebuilds:     make(map[string]int64),
		indexEntries:      make(map[string]int),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka MessageHandler that feeds agg. Undecodable
// messages are logged and skipped so one bad record cannot wedge the
// consumer group.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err, "key", string(key))
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Track lets the aggregator act as an in-process Tracker.
func (a *Aggregator) Track(event Event) error {
	a.Record(event)
	return nil
}

// Record folds a single event into the running totals.
func (a *Aggregator) Record(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch event.Type {
	case EventQuery:
		a.totalQueries++
		a.queryCounts[event.Query]++
		if event.ResultCount == 0 {
			a.zeroResults++
			a.zeroResultQueries[event.Query]++
		}
		if fallback, _ := event.Metadata["fallback"].(bool); fallback {
			a.fallbacks++
		}
		a.latencies = append(a.latencies, event.DurationMs)
		if len(a.latencies) > maxLatencySamples {
			a.latencies = slices.Delete(a.latencies, 0, len(a.latencies)-maxLatencySamples)
		}
	case EventCacheHit:
		a.cacheHits++
	case EventCacheMiss:
		a.cacheMisses++
	case EventSlowQuery:
		a.slowQueries++
		a.slowQueryCounts[event.Query]++
	case EventIndexRebuilt:
		a.indexRebuilds[event.IndexType]++
		a.indexEntries[event.IndexType] = event.Entries
	default:
		a.logger.Debug("ignoring unknown analytics event", "type", event.Type)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		SlowQueryCount:  a.slowQueries,
		FallbackCount:   a.fallbacks,
		ZeroResultCount: a.zeroResults,
		IndexRebuilds:   make(map[string]int64, len(a.indexRebuilds)),
		IndexEntries:    make(map[string]int, len(a.indexEntries)),
	}
	if lookups := a.cacheHits + a.cacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(a.cacheHits) / float64(lookups)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.SlowQueries = topN(a.slowQueryCounts, 10)
	for k, v := range a.indexRebuilds {
		stats.IndexRebuilds[k] = v
	}
	for k, v := range a.indexEntries {
		stats.IndexEntries[k] = v
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
