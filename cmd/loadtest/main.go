// Command loadtest drives a mixed search workload against a running searcher
// and prints per-endpoint throughput and latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// queries mixes exact titles, typos and sound-alikes so both the cached
// and the fuzzy paths are exercised.
var queries = []string{
	"kubernetes",
	"kuberntes",
	"kubernetes networking",
	"sourdough",
	"sourdoe bread",
	"postgres indexes",
	"postgress",
	"idiomatic go",
	"filosofy",
	"distributed tracing",
}

type endpoint struct {
	name string
	path func(q string) string
}

var endpoints = []endpoint{
	{"search", func(q string) string { return "/api/v1/search?limit=10&q=" + url.QueryEscape(q) }},
	{"tags", func(q string) string { return "/api/v1/search?type=tags&q=" + url.QueryEscape(q) }},
	{"multi", func(q string) string { return "/api/v1/search/multi?fields=title,excerpt,tags&q=" + url.QueryEscape(q) }},
	{"suggest", func(q string) string { return "/api/v1/suggest?q=" + url.QueryEscape(q) }},
}

type endpointStats struct {
	mu        sync.Mutex
	requests  int64
	failures  int64
	latencies []time.Duration
	codes     map[int]int64
}

func (s *endpointStats) record(d time.Duration, code int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if err != nil {
		s.failures++
		return
	}
	if code < 200 || code >= 300 {
		s.failures++
	}
	s.latencies = append(s.latencies, d)
	s.codes[code]++
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "global request rate cap (0 = unlimited)")
	flag.Parse()

	stats := make(map[string]*endpointStats, len(endpoints))
	for _, ep := range endpoints {
		stats[ep.name] = &endpointStats{codes: make(map[int]int64)}
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d x %d endpoints\n\n", len(queries), len(endpoints))

	if err := run(*baseURL, *concurrency, *duration, *rps, stats); err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if !report(stats, *duration) {
		fmt.Println("\nWARNING: No requests completed. Is the searcher running?")
		os.Exit(1)
	}
}

func run(baseURL string, concurrency int, duration time.Duration, rps float64, stats map[string]*endpointStats) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				ep := endpoints[i%len(endpoints)]
				q := queries[(i/len(endpoints))%len(queries)]
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+ep.path(q), nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					stats[ep.name].record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[ep.name].record(elapsed, resp.StatusCode, nil)
			}
		})
	}
	return g.Wait()
}

// report prints the summary and reports whether any request completed.
func report(stats map[string]*endpointStats, duration time.Duration) bool {
	var total int64
	for _, ep := range endpoints {
		s := stats[ep.name]
		s.mu.Lock()
		latencies := slices.Clone(s.latencies)
		requests, failures := s.requests, s.failures
		codes := make([]int, 0, len(s.codes))
		for code := range s.codes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		counts := make([]int64, len(codes))
		for i, code := range codes {
			counts[i] = s.codes[code]
		}
		s.mu.Unlock()

		total += requests
		fmt.Printf("=== %s ===\n", ep.name)
		fmt.Printf("Requests:     %d\n", requests)
		if requests == 0 {
			fmt.Println()
			continue
		}
		fmt.Printf("Failures:     %d (%.2f%%)\n", failures, float64(failures)/float64(requests)*100)
		fmt.Printf("Requests/sec: %.2f\n", float64(requests)/duration.Seconds())
		if len(latencies) > 0 {
			slices.Sort(latencies)
			fmt.Printf("Latency:      min %s  p50 %s  p95 %s  p99 %s  max %s\n",
				latencies[0],
				percentile(latencies, 50),
				percentile(latencies, 95),
				percentile(latencies, 99),
				latencies[len(latencies)-1],
			)
		}
		for i, code := range codes {
			fmt.Printf("  %d: %d\n", code, counts[i])
		}
		fmt.Println()
	}
	return total > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
