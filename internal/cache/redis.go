package cache

import (
	"context"
	"time"

	pkgredis "github.com/goleaf/newsblog-search/pkg/redis"
)

// Redis is a Cache backed by a Redis server. Pattern deletion uses SCAN.
type Redis struct {
	client *pkgredis.Client
}

// NewRedis wraps a connected client.
func NewRedis(client *pkgredis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl)
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	return r.client.Exists(ctx, key)
}

func (r *Redis) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}

func (r *Redis) ForgetPattern(ctx context.Context, pattern string) (int64, error) {
	return r.client.FlushByPattern(ctx, pattern)
}
