// Package cache is the key-value layer shared by the index store and the
// match engine. Backends only need get/put/has/forget with a per-key TTL;
// key enumeration is an optional capability.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

// Cache is a generic key-value store with per-key expiry. A zero ttl means
// the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// PatternForgetter is implemented by backends that can enumerate keys.
// Pattern syntax is a glob where only a trailing '*' is guaranteed.
type PatternForgetter interface {
	ForgetPattern(ctx context.Context, pattern string) (int64, error)
}

// SupportsPatterns reports whether c can delete keys by pattern.
func SupportsPatterns(c Cache) bool {
	_, ok := c.(PatternForgetter)
	return ok
}

// ForgetPattern deletes every key matching pattern, or returns
// ErrCacheUnsupported when the backend cannot enumerate keys.
func ForgetPattern(ctx context.Context, c Cache, pattern string) (int64, error) {
	pf, ok := c.(PatternForgetter)
	if !ok {
		return 0, fmt.Errorf("forget %q: %w", pattern, apperrors.ErrCacheUnsupported)
	}
	return pf.ForgetPattern(ctx, pattern)
}

// Remember returns the value cached under key, or calls produce, stores its
// result for ttl and returns it. The boolean reports a cache hit.
//
// Cache failures never fail the call: an unreadable or undecodable entry is
// treated as a miss and a failed write is only logged. Errors from produce
// are returned unchanged and nothing is stored.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, bool, error) {
	logger := slog.Default().With("component", "cache", "key", key)

	data, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache get failed", "error", err)
	} else if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, true, nil
		}
		logger.Warn("discarding undecodable cache entry", "error", err)
	}

	value, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if err := Store(ctx, c, key, value, ttl); err != nil {
		logger.Warn("cache put failed", "error", err)
	}
	return value, false, nil
}

// Load decodes the value under key. ok is false on a miss.
func Load[T any](ctx context.Context, c Cache, key string) (value T, ok bool, err error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return value, true, nil
}

// Store encodes value as JSON and puts it under key.
func Store[T any](ctx context.Context, c Cache, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.Put(ctx, key, data, ttl)
}
