package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Put(ctx, "b", []byte("2"), 0))

	ok, err := m.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.Has(ctx, "a")
	assert.False(t, ok, "entry should expire at its deadline")
	ok, _ = m.Has(ctx, "b")
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, 1, m.Len())
}

func TestMemory_ExpiredEntriesAreReleased(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.SetClock(func() time.Time { return now })

	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Put(ctx, fmt.Sprintf("search:results:%d", i), []byte("x"), 10*time.Minute))
	}
	require.NoError(t, m.Put(ctx, "search:index:posts", []byte("x"), 0))
	now = now.Add(24 * time.Hour)

	_, ok, err := m.Get(ctx, "search:results:0")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, m.items, 1000, "reading an expired key drops it")

	// enough writes to trigger a purge on the write path
	for i := 0; i < purgeEvery; i++ {
		require.NoError(t, m.Put(ctx, "search:suggest:live", []byte("y"), time.Minute))
	}
	assert.Len(t, m.items, 2)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_PurgeAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	m := NewMemory()
	m.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	require.NoError(t, m.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Put(ctx, "b", []byte("2"), time.Hour))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	assert.Equal(t, 1, m.Purge())
	assert.Equal(t, 0, m.Purge())

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		m.Sweep(sweepCtx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.items) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestMemory_ForgetPattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"search:results:1", "search:results:2", "search:index:posts"} {
		require.NoError(t, m.Put(ctx, k, []byte("x"), 0))
	}

	require.True(t, SupportsPatterns(m))
	n, err := ForgetPattern(ctx, m, "search:results:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, _ := m.Has(ctx, "search:index:posts")
	assert.True(t, ok)
}

func TestNull_NoPatternSupport(t *testing.T) {
	ctx := context.Background()
	var c Cache = Null{}
	assert.False(t, SupportsPatterns(c))

	_, err := ForgetPattern(ctx, c, "search:*")
	assert.ErrorIs(t, err, apperrors.ErrCacheUnsupported)

	require.NoError(t, c.Put(ctx, "k", []byte("v"), 0))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	calls := 0
	produce := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "posts", Count: 3}, nil
	}

	v, hit, err := Remember(ctx, m, "k", time.Minute, produce)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, v.Count)

	v, hit, err = Remember(ctx, m, "k", time.Minute, produce)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "posts", v.Name)
	assert.Equal(t, 1, calls)
}

func TestRemember_CorruptEntryIsRecomputed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "k", []byte("{not json"), 0))

	v, hit, err := Remember(ctx, m, "k", 0, func(context.Context) (payload, error) {
		return payload{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", v.Name)

	stored, ok, err := Load[payload](ctx, m, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", stored.Name)
}

func TestRemember_ProducerErrorStoresNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	_, _, err := Remember(ctx, m, "k", 0, func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}
