// Command searcher serves fuzzy search over the newsblog content.
//
// It builds the index snapshots lazily from the content database, caches
// them and the query results in Redis (or in process when Redis is off),
// and publishes search analytics to Kafka. Without Kafka brokers the
// analytics are aggregated in process and served at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml] [-driver postgres|sqlite3] [-dsn DSN]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/searcher"
	"github.com/goleaf/newsblog-search/internal/searcher/handler"
	"github.com/goleaf/newsblog-search/pkg/config"
	"github.com/goleaf/newsblog-search/pkg/health"
	"github.com/goleaf/newsblog-search/pkg/kafka"
	"github.com/goleaf/newsblog-search/pkg/logger"
	"github.com/goleaf/newsblog-search/pkg/metrics"
	"github.com/goleaf/newsblog-search/pkg/middleware"
	"github.com/goleaf/newsblog-search/pkg/postgres"
	pkgredis "github.com/goleaf/newsblog-search/pkg/redis"
	"github.com/goleaf/newsblog-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	driver := flag.String("driver", postgres.DriverName, "content database driver: postgres or sqlite3")
	dsn := flag.String("dsn", "", "content database DSN; empty uses the postgres config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "driver", *driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	src, db, err := content.Open(ctx, *driver, *dsn, cfg.Postgres, resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	if err != nil {
		slog.Error("failed to open content database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	local := cache.NewMemory()
	var store cache.Cache = local
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = resilience.RetryValue(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3}, func() (*pkgredis.Client, error) {
			return pkgredis.NewClient(cfg.Redis)
		})
		if err != nil {
			slog.Warn("redis unavailable, caching in process", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			store = cache.NewRedis(redisClient)
			slog.Info("redis cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	if store == cache.Cache(local) {
		go local.Sweep(ctx, time.Minute)
	}

	var sink analytics.Sink
	var aggregator *analytics.Aggregator
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, analytics.CollectorConfig{})
		collector.Start(ctx)
		defer collector.Close()
		sink = analytics.NewSink(collector)
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	} else {
		aggregator = analytics.NewAggregator()
		sink = analytics.NewSink(aggregator)
		slog.Info("no kafka brokers configured, aggregating analytics in process")
	}

	idx := indexer.NewStore(src, store, sink, indexer.ConfigFrom(cfg.Search), indexer.WithMetrics(m))
	engine := searcher.New(cfg.Search, idx, src, store, sink, searcher.WithMetrics(m))
	h := handler.New(engine, idx, engine.ResultCache())

	checker := health.NewChecker()
	checker.Register("content_db", health.PingCheck(db.PingContext, health.StatusDown))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	} else {
		checker.Register("redis", health.PingCheck(nil, health.StatusDegraded))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	if aggregator != nil {
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		chain = middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// closed once in-flight requests have drained, so the deferred
	// collector and store closes never race a handler
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-drained

	slog.Info("search service stopped")
}
