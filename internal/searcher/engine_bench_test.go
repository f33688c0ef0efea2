package searcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/pkg/config"
	"github.com/goleaf/newsblog-search/pkg/metrics"
)

var benchTitles = []string{
	"Understanding Kubernetes Fundamentals",
	"Kubernetes Networking Deep Dive",
	"Baking Sourdough Bread",
	"Distributed Tracing in Practice",
	"Writing Idiomatic Go",
	"A Field Guide to PostgreSQL Indexes",
}

func benchEngine(b *testing.B, posts int, c cache.Cache) *Engine {
	b.Helper()
	src := content.NewMemoryStore()
	for i := 0; i < posts; i++ {
		title := fmt.Sprintf("%s %d", benchTitles[i%len(benchTitles)], i)
		src.PutPost(post(int64(i+1), title, int64(i%5+1), int64(i%3+1), -time.Hour))
	}
	cfg := config.DefaultSearch()
	store := indexer.NewStore(src, cache.NewMemory(), analytics.Nop{},
		indexer.Config{TTL: time.Hour, MaxItems: posts + 1, PhoneticEnabled: cfg.PhoneticEnabled},
		indexer.WithClock(func() time.Time { return now }),
	)
	if _, err := store.BuildAll(context.Background()); err != nil {
		b.Fatalf("building index: %v", err)
	}
	return New(cfg, store, src, c, analytics.Nop{},
		WithClock(time.Now),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
}

// BenchmarkSearchPosts measures the uncached matching path for growing
// corpora.
func BenchmarkSearchPosts(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("posts_%d", n), func(b *testing.B) {
			e := benchEngine(b, n, cache.Null{})
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.SearchPosts(ctx, "kuberntes netwrking", Options{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchPosts_Cached(b *testing.B) {
	e := benchEngine(b, 1000, cache.NewMemory())
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.SearchPosts(ctx, "kuberntes", Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetSuggestions(b *testing.B) {
	e := benchEngine(b, 1000, cache.Null{})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.GetSuggestions(ctx, "kube", 5); err != nil {
			b.Fatal(err)
		}
	}
}
