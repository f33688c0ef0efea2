package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/newsblog-search/internal/cache"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

type opts struct {
	Category int64 `json:"category"`
	Limit    int   `json:"limit"`
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("posts", "Kubernetes  basics", opts{Limit: 10})
	b := Key("posts", "  kubernetes basics ", opts{Limit: 10})

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, ResultPrefix))
}

func TestKey_DistinguishesInputs(t *testing.T) {
	base := Key("posts", "go", opts{Limit: 10})

	assert.NotEqual(t, base, Key("tags", "go", opts{Limit: 10}))
	assert.NotEqual(t, base, Key("posts", "rust", opts{Limit: 10}))
	assert.NotEqual(t, base, Key("posts", "go", opts{Limit: 11}))
	assert.NotEqual(t, base, Key("posts", "go", opts{Limit: 10, Category: 1}))
	// part boundaries must not be ambiguous
	assert.NotEqual(t, Key("posts", "a b", nil), Key("posts a", "b", nil))
}

func TestSuggestionKey(t *testing.T) {
	assert.Equal(t, SuggestionKey("Kub", 5), SuggestionKey("kub", 5))
	assert.NotEqual(t, SuggestionKey("kub", 5), SuggestionKey("kub", 6))
	assert.True(t, strings.HasPrefix(SuggestionKey("kub", 5), SuggestionPrefix))
}

func TestGetOrCompute(t *testing.T) {
	rc := New(cache.NewMemory())
	ctx := context.Background()
	calls := 0
	compute := func() ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	v, hit, err := GetOrCompute(ctx, rc, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a", "b"}, v)

	v, hit, err = GetOrCompute(ctx, rc, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, v)

	assert.Equal(t, 1, calls)
	hits, misses := rc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrCompute_UndecodableEntryIsRecomputed(t *testing.T) {
	backend := cache.NewMemory()
	rc := New(backend)
	ctx := context.Background()
	key := Key("posts", "go", nil)
	require.NoError(t, backend.Put(ctx, key, []byte("not json"), time.Minute))

	v, hit, err := GetOrCompute(ctx, rc, key, time.Minute, func() ([]int, error) { return []int{3}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{3}, v)

	v, hit, err = GetOrCompute(ctx, rc, key, time.Minute, func() ([]int, error) { return nil, errors.New("unused") })
	require.NoError(t, err)
	assert.True(t, hit, "the recomputed value replaces the corrupt entry")
	assert.Equal(t, []int{3}, v)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	rc := New(cache.NewMemory())
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := GetOrCompute(ctx, rc, "k", time.Minute, func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	v, hit, err := GetOrCompute(ctx, rc, "k", time.Minute, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func TestGetOrCompute_CoalescesConcurrentMisses(t *testing.T) {
	rc := New(cache.NewMemory())
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := GetOrCompute(ctx, rc, "k", time.Minute, func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestGetOrCompute_NullBackendAlwaysComputes(t *testing.T) {
	rc := New(cache.Null{})
	ctx := context.Background()
	calls := 0

	for range 3 {
		_, hit, err := GetOrCompute(ctx, rc, "k", time.Minute, func() (int, error) {
			calls++
			return calls, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 3, calls)
}

func TestInvalidate(t *testing.T) {
	backend := cache.NewMemory()
	rc := New(backend)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, backend, Key("posts", "go", nil), []int{1}, time.Minute))
	require.NoError(t, cache.Store(ctx, backend, SuggestionKey("gop", 5), []string{"Gophers"}, time.Minute))
	require.NoError(t, backend.Put(ctx, "search:index:posts", []byte("{}"), 0))

	require.True(t, rc.SupportsInvalidation())
	require.NoError(t, rc.Invalidate(ctx))

	assert.Equal(t, 1, backend.Len(), "index snapshots must survive")
	calls := 0
	_, hit, err := GetOrCompute(ctx, rc, Key("posts", "go", nil), time.Minute, func() ([]int, error) {
		calls++
		return []int{2}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
}

func TestInvalidate_Unsupported(t *testing.T) {
	rc := New(cache.Null{})

	assert.False(t, rc.SupportsInvalidation())
	assert.ErrorIs(t, rc.Invalidate(context.Background()), apperrors.ErrCacheUnsupported)
}
