// Package cache memoises search results and suggestions on top of the
// shared cache layer. Keys are deterministic hashes of the index type,
// the normalised query and the option set.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goleaf/newsblog-search/internal/cache"
)

// Key prefixes.
const (
	ResultPrefix     = "search:results:"
	SuggestionPrefix = "search:suggest:"
)

// ResultCache caches computed values by key. Concurrent misses for the
// same key share one computation.
type ResultCache struct {
	backend cache.Cache
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend cache.Cache) *ResultCache {
	return &ResultCache{
		backend: backend,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Key derives the result key for (indexType, query, opts). The query is
// normalised by collapsing whitespace and lower-casing; opts is encoded as
// JSON, so every field of the option set takes part in the key.
func Key(indexType, query string, opts any) string {
	encoded, err := json.Marshal(opts)
	if err != nil {
		// option structs are plain data; fall back to their printed form
		encoded = fmt.Appendf(nil, "%#v", opts)
	}
	return hashKey(ResultPrefix, indexType, normalizeQuery(query), string(encoded))
}

// SuggestionKey derives the key for a suggestion lookup.
func SuggestionKey(prefix string, limit int) string {
	return hashKey(SuggestionPrefix, normalizeQuery(prefix), fmt.Sprint(limit))
}

// flight carries one shared computation to every caller waiting on a key.
type flight[T any] struct {
	value T
	hit   bool
}

// GetOrCompute returns the value cached under key or computes, stores and
// returns it through cache.Remember. The boolean reports a cache hit.
// Concurrent callers for the same key share one lookup and at most one
// computation. compute errors are returned and nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key string, ttl time.Duration, compute func() (T, error)) (T, bool, error) {
	shared, err, _ := c.group.Do(key, func() (any, error) {
		value, hit, err := cache.Remember(ctx, c.backend, key, ttl, func(context.Context) (T, error) {
			return compute()
		})
		if err != nil {
			return nil, err
		}
		return flight[T]{value: value, hit: hit}, nil
	})
	if err != nil {
		c.misses.Add(1)
		var zero T
		return zero, false, err
	}
	f := shared.(flight[T])
	if f.hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return f.value, f.hit, nil
}

// Invalidate drops every cached result and suggestion. It returns
// errors.ErrCacheUnsupported when the backend cannot delete by pattern;
// entries then expire by TTL.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	var total int64
	for _, prefix := range []string{ResultPrefix, SuggestionPrefix} {
		deleted, err := cache.ForgetPattern(ctx, c.backend, prefix+"*")
		if err != nil {
			return fmt.Errorf("invalidating result cache: %w", err)
		}
		total += deleted
	}
	c.logger.Info("cache invalidate", "keys_deleted", total)
	return nil
}

// SupportsInvalidation reports whether Invalidate can work on this backend.
func (c *ResultCache) SupportsInvalidation() bool {
	return cache.SupportsPatterns(c.backend)
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func hashKey(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// length-prefix each part so no two part lists hash alike
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return fmt.Sprintf("%s%x", prefix, h.Sum(nil)[:16])
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
