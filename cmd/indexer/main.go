// Command indexer manages the cached search index snapshots.
//
// Usage:
//
//	indexer [-config FILE] [-driver postgres|sqlite3] [-dsn DSN] <command>
//
// Commands:
//
//	build           rebuild every index type
//	rebuild TYPE    rebuild one index type (posts, tags, categories)
//	clear           evict every cached snapshot
//	stats           print per-type entry counts as JSON
//	consume         apply content mutation events from Kafka until stopped
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/indexer/consumer"
	resultcache "github.com/goleaf/newsblog-search/internal/searcher/cache"
	"github.com/goleaf/newsblog-search/pkg/config"
	"github.com/goleaf/newsblog-search/pkg/kafka"
	"github.com/goleaf/newsblog-search/pkg/logger"
	"github.com/goleaf/newsblog-search/pkg/postgres"
	pkgredis "github.com/goleaf/newsblog-search/pkg/redis"
	"github.com/goleaf/newsblog-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	driver := flag.String("driver", postgres.DriverName, "content database driver: postgres or sqlite3")
	dsn := flag.String("dsn", "", "content database DSN; empty uses the postgres config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] build | rebuild TYPE | clear | stats | consume\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *driver, *dsn, flag.Args()); err != nil {
		slog.Error("indexer command failed", "command", flag.Arg(0), "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, driver, dsn string, args []string) error {
	src, db, err := content.Open(ctx, driver, dsn, cfg.Postgres, resilience.CircuitBreakerConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	// snapshots must land in the cache the search service reads, so there
	// is no in-process fallback here
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	store := cache.NewRedis(redisClient)

	idx := indexer.NewStore(src, store, analytics.Nop{}, indexer.ConfigFrom(cfg.Search))

	switch args[0] {
	case "build":
		n, err := idx.BuildAll(ctx)
		if err != nil {
			return err
		}
		slog.Info("index built", "entries", n)
	case "rebuild":
		if len(args) < 2 {
			return fmt.Errorf("rebuild needs an index type: %v", indexer.AllTypes)
		}
		t, err := indexer.ParseType(args[1])
		if err != nil {
			return err
		}
		n, err := idx.Rebuild(ctx, t)
		if err != nil {
			return err
		}
		slog.Info("index rebuilt", "type", t, "entries", n)
	case "clear":
		if err := idx.ClearIndex(ctx); err != nil {
			return err
		}
		slog.Info("index cleared")
	case "stats":
		stats, err := idx.GetStats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case "consume":
		return consume(ctx, cfg, idx, src, resultcache.New(store))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func consume(ctx context.Context, cfg *config.Config, idx *indexer.Store, src content.Store, results *resultcache.ResultCache) error {
	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ContentEvents,
		consumer.HandleMessage(idx, src, results),
	)

	slog.Info("indexer consuming content events",
		"topic", cfg.Kafka.Topics.ContentEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.New(kafkaConsumer).Start(ctx); err != nil {
		return fmt.Errorf("consuming content events: %w", err)
	}
	slog.Info("indexer stopped")
	return nil
}
