package indexer

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/metrics"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *Store
	content  *content.MemoryStore
	cache    *cache.Memory
	recorder *analytics.Recorder
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	f := &fixture{
		content:  content.NewMemoryStore(),
		cache:    cache.NewMemory(),
		recorder: &analytics.Recorder{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.store = NewStore(f.content, f.cache, analytics.NewSink(f.recorder), cfg,
		WithClock(func() time.Time { return now }),
		WithMetrics(f.metrics),
	)

	f.content.PutPost(post(1, "Understanding Kubernetes Fundamentals", -2*time.Hour))
	f.content.PutPost(post(2, "Baking Bread at Home", -1*time.Hour))
	f.content.PutTag(content.Tag{ID: 10, Name: "kubernetes", Slug: "kubernetes"})
	f.content.PutTag(content.Tag{ID: 11, Name: "baking", Slug: "baking"})
	f.content.PutCategory(content.Category{ID: 20, Name: "DevOps", Slug: "devops", Description: "<p>Ops</p>"})
	return f
}

func post(id int64, title string, age time.Duration) content.Post {
	published := now.Add(age)
	return content.Post{
		ID:          id,
		Title:       title,
		Slug:        "post",
		Excerpt:     "An <em>excerpt</em>",
		Content:     "<p>Body &amp; soul</p>",
		Status:      content.StatusPublished,
		PublishedAt: &published,
		AuthorID:    7,
		AuthorName:  "Ada",
		CategoryID:  20,
		Tags:        []string{"kubernetes"},
	}
}

func postIDs(snap *Snapshot) []int64 {
	var ids []int64
	for _, e := range snap.Posts {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestBuildAll(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	n, err := f.store.BuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	calls := f.content.Calls()
	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, calls, f.content.Calls(), "cached snapshot must not hit the store")
	assert.Equal(t, []int64{2, 1}, postIDs(snap), "newest first")
	assert.Equal(t, "Body & soul", snap.Posts[1].Content, "markup is stripped")
	assert.Equal(t, 3, f.recorder.Count(analytics.EventIndexRebuilt))

	cats, err := f.store.GetIndex(ctx, Categories)
	require.NoError(t, err)
	assert.Equal(t, "Ops", cats.Categories[0].Description)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IndexEntries.WithLabelValues("posts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexRebuildsTotal.WithLabelValues("tags", "ok")))
}

func TestBuildAll_StoreFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.BuildAll(ctx)
	require.NoError(t, err)

	f.content.PutPost(post(3, "Newer Post", -time.Minute))
	f.content.FailWith(errors.New("connection refused"))

	_, err = f.store.BuildAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexBuild)
	assert.True(t, IsIndexBuildError(err))
	assert.Contains(t, err.Error(), "connection refused")

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, postIDs(snap))
}

func TestRebuild_InvalidType(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.store.Rebuild(context.Background(), Type("comments"))
	require.Error(t, err)

	var buildErr *IndexBuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, Type("comments"), buildErr.Type)
	assert.ErrorIs(t, err, apperrors.ErrInvalidIndexType)
	assert.Contains(t, err.Error(), "comments")
}

func TestRebuild_SingleType(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	n, err := f.store.Rebuild(ctx, Tags)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := f.store.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats[Tags].Cached)
	assert.False(t, stats[Posts].Cached)
}

func TestGetIndex_ExcludesUnpublishedAndFuture(t *testing.T) {
	f := newFixture(t, Config{})
	draft := post(3, "Draft", -time.Hour)
	draft.Status = "draft"
	f.content.PutPost(draft)
	f.content.PutPost(post(4, "Scheduled", time.Hour))
	unset := post(5, "No date", 0)
	unset.PublishedAt = nil
	f.content.PutPost(unset)

	snap, err := f.store.GetIndex(context.Background(), Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, postIDs(snap))
}

func TestIndex_IsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)

	p := post(3, "Fresh Post", -time.Minute)
	require.NoError(t, f.store.Index(ctx, p))
	require.NoError(t, f.store.Index(ctx, p))

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, postIDs(snap))
}

func TestIndex_ExcludedRecordIsRemoved(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)

	p := post(1, "Understanding Kubernetes Fundamentals", -2*time.Hour)
	p.Status = "draft"
	require.NoError(t, f.store.Index(ctx, p))

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, -1, indexOfPost(snap, 1))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)

	p := post(1, "Kubernetes Deep Dive", -2*time.Hour)
	require.NoError(t, f.store.Update(ctx, p))
	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, "Kubernetes Deep Dive", snap.Posts[1].Title)

	future := post(1, "Kubernetes Deep Dive", 24*time.Hour)
	require.NoError(t, f.store.Update(ctx, future))
	snap, err = f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, postIDs(snap))
}

func TestUpdate_TagsAndCategories(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.BuildAll(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.Update(ctx, content.Tag{ID: 10, Name: "k8s", Slug: "k8s"}))
	require.NoError(t, f.store.Index(ctx, content.Category{ID: 21, Name: "Cooking"}))

	tags, err := f.store.GetIndex(ctx, Tags)
	require.NoError(t, err)
	assert.Equal(t, []TagEntry{{ID: 11, Name: "baking", Slug: "baking"}, {ID: 10, Name: "k8s", Slug: "k8s"}}, tags.Tags)

	cats, err := f.store.GetIndex(ctx, Categories)
	require.NoError(t, err)
	assert.Equal(t, "Cooking", cats.Categories[0].Name)
}

func TestRemove_IsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)

	require.NoError(t, f.store.Remove(ctx, 2, Posts))
	require.NoError(t, f.store.Remove(ctx, 2, Posts))
	require.NoError(t, f.store.Remove(ctx, 999, Posts))

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, postIDs(snap))

	assert.ErrorIs(t, f.store.Remove(ctx, 1, Type("bogus")), apperrors.ErrInvalidIndexType)
}

func TestIndex_UncachedSnapshotIsRebuiltWithChange(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	p := post(3, "Fresh Post", -time.Minute)
	f.content.PutPost(p)
	require.NoError(t, f.store.Index(ctx, p))
	assert.Equal(t, 0, f.cache.Len(), "no snapshot is written from a single entity")

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, postIDs(snap))
}

func TestIndex_CorruptSnapshotIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, Posts.CacheKey(), []byte("garbage"), 0))

	require.NoError(t, f.store.Index(ctx, post(3, "Fresh", -time.Minute)))
	ok, err := f.cache.Has(ctx, Posts.CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearIndexAndStats(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.BuildAll(ctx)
	require.NoError(t, err)

	stats, err := f.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[Posts].Count)
	assert.True(t, stats[Posts].Cached)
	assert.True(t, stats[Posts].BuiltAt.Equal(now))

	require.NoError(t, f.store.ClearIndex(ctx))
	calls := f.content.Calls()
	stats, err = f.store.GetStats(ctx)
	require.NoError(t, err)
	for _, typ := range AllTypes {
		assert.Equal(t, Stats{}, stats[typ], typ)
	}
	assert.Equal(t, calls, f.content.Calls(), "stats must not rebuild")
}

func TestMaxItems(t *testing.T) {
	f := newFixture(t, Config{MaxItems: 2})
	ctx := context.Background()
	f.content.PutPost(post(3, "Third", -3*time.Hour))

	snap, err := f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, postIDs(snap))

	require.NoError(t, f.store.Index(ctx, post(4, "Newest", -time.Minute)))
	snap, err = f.store.GetIndex(ctx, Posts)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, postIDs(snap))
}

func TestPhoneticCodes(t *testing.T) {
	f := newFixture(t, Config{PhoneticEnabled: true})
	snap, err := f.store.GetIndex(context.Background(), Posts)
	require.NoError(t, err)
	require.NotNil(t, snap.Posts[1].Phonetic)
	assert.Contains(t, snap.Posts[1].Phonetic.Title, "KBRNTS")

	f2 := newFixture(t, Config{})
	snap, err = f2.store.GetIndex(context.Background(), Posts)
	require.NoError(t, err)
	assert.Nil(t, snap.Posts[0].Phonetic)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Posts ")
	require.NoError(t, err)
	assert.Equal(t, Posts, typ)

	_, err = ParseType("users")
	assert.ErrorIs(t, err, apperrors.ErrInvalidIndexType)
}

func TestEntry_Fields(t *testing.T) {
	e, err := NewEntry(post(1, "Title", -time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, Posts, e.Kind())
	assert.Equal(t, "search:index:posts", e.CacheKey())
	assert.Equal(t, "Title", e.Field(FieldTitle))
	assert.Equal(t, "kubernetes", e.Field(FieldTags))
	assert.Equal(t, "", e.Field("nope"))

	cat, err := NewEntry(content.Category{ID: 1, Name: "Go", Description: "Gophers"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Gophers", cat.Field(FieldDescription))
}

func indexOfPost(snap *Snapshot, id int64) int {
	return slices.IndexFunc(snap.Posts, func(p PostEntry) bool { return p.ID == id })
}
