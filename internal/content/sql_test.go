package content

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/newsblog-search/pkg/config"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/resilience"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every pooled connection would get its own empty :memory: database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, "sqlite3", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	require.NoError(t, store.Migrate(context.Background()))
	seed(t, db)
	return store, db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	future := baseTime.Add(48 * time.Hour)
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO authors (id, name) VALUES (?, ?)`, []any{1, "Ada"}},
		{`INSERT INTO authors (id, name) VALUES (?, ?)`, []any{2, "Linus"}},
		{`INSERT INTO categories (id, name, slug, description) VALUES (?, ?, ?, ?)`, []any{10, "DevOps", "devops", "Shipping software"}},
		{`INSERT INTO categories (id, name, slug, description) VALUES (?, ?, ?, ?)`, []any{11, "Cooking", "cooking", "Recipes and 100% butter"}},
		{`INSERT INTO tags (id, name, slug) VALUES (?, ?, ?)`, []any{100, "kubernetes", "kubernetes"}},
		{`INSERT INTO tags (id, name, slug) VALUES (?, ?, ?)`, []any{101, "containers", "containers"}},
		{`INSERT INTO posts (id, title, slug, excerpt, content, status, published_at, author_id, category_id)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{1, "Understanding Kubernetes Fundamentals", "k8s", "Pods and nodes", "<p>Clusters</p>", "published", baseTime.Add(-2 * time.Hour), 1, 10}},
		{`INSERT INTO posts (id, title, slug, excerpt, content, status, published_at, author_id, category_id)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{2, "Baking Bread", "bread", "Flour_and water", "Knead it", "published", baseTime.Add(-1 * time.Hour), 2, 11}},
		{`INSERT INTO posts (id, title, slug, excerpt, content, status, published_at, author_id, category_id)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{3, "Kubernetes Draft", "draft", "", "", "draft", baseTime.Add(-3 * time.Hour), 1, 10}},
		{`INSERT INTO posts (id, title, slug, excerpt, content, status, published_at, author_id, category_id)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{4, "Kubernetes Tomorrow", "tomorrow", "", "", "published", future, 1, 10}},
		{`INSERT INTO post_tag (post_id, tag_id) VALUES (?, ?)`, []any{1, 101}},
		{`INSERT INTO post_tag (post_id, tag_id) VALUES (?, ?)`, []any{1, 100}},
	}
	for _, s := range stmts {
		_, err := db.Exec(s.query, s.args...)
		require.NoError(t, err, s.query)
	}
}

func TestSQLStore_PublishedPosts(t *testing.T) {
	store, _ := newSQLiteStore(t)

	posts, err := store.PublishedPosts(context.Background(), baseTime, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2, "drafts and future posts are excluded")
	assert.Equal(t, int64(2), posts[0].ID, "newest first")

	k8s := posts[1]
	assert.Equal(t, "Ada", k8s.AuthorName)
	assert.Equal(t, "DevOps", k8s.CategoryName)
	assert.Equal(t, []string{"containers", "kubernetes"}, k8s.Tags)
	require.NotNil(t, k8s.PublishedAt)
	assert.True(t, k8s.PublishedAt.Equal(baseTime.Add(-2*time.Hour)))

	limited, err := store.PublishedPosts(context.Background(), baseTime, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLStore_SingleRowLookups(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	p, err := store.Post(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Status)

	_, err = store.Post(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Tag(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Category(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// not-found lookups must not trip the breaker
	_, err = store.Post(ctx, 998)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	tag, err := store.Tag(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", tag.Name)

	posts, err := store.PostsByIDs(ctx, []int64{1, 2, 42})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestSQLStore_SearchPosts(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    PostQuery
		want []int64
	}{
		{"title match is case-insensitive", PostQuery{Term: "KUBERNETES", Now: baseTime}, []int64{1}},
		{"content match", PostQuery{Term: "knead", Now: baseTime}, []int64{2}},
		{"underscore is literal", PostQuery{Term: "flour_and", Now: baseTime}, []int64{2}},
		{"underscore does not act as wildcard", PostQuery{Term: "flour_xnd", Now: baseTime}, nil},
		{"category filter", PostQuery{Term: "e", Now: baseTime, CategoryID: 11}, []int64{2}},
		{"author filter", PostQuery{Term: "e", Now: baseTime, AuthorID: 1}, []int64{1}},
		{"date range", PostQuery{Term: "e", Now: baseTime, From: ptr(baseTime.Add(-90 * time.Minute))}, []int64{2}},
		{"future posts appear once published", PostQuery{Term: "tomorrow", Now: baseTime.Add(72 * time.Hour)}, []int64{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := store.SearchPosts(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(posts))
		})
	}
}

func TestSQLStore_SearchTagsAndCategories(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	tags, err := store.SearchTags(ctx, "kube", 10)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "kubernetes", tags[0].Name)

	cats, err := store.SearchCategories(ctx, "100%", 10)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Cooking", cats[0].Name)

	all, err := store.Categories(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Cooking", all[0].Name, "ordered by name")
}

func TestSQLStore_BreakerOpensOnDatabaseFailure(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	for i := 0; i < 2; i++ {
		_, err := store.Tags(ctx, 0)
		require.Error(t, err)
	}
	_, err := store.Tags(ctx, 0)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{driver: "postgres"}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2,$3)", s.rebind("SELECT 1 WHERE a = ? AND b IN (?,?)"))

	s.driver = "sqlite3"
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestMemoryStore_MatchesSQLSemantics(t *testing.T) {
	m := NewMemoryStore()
	published := baseTime.Add(-time.Hour)
	m.PutPost(Post{ID: 1, Title: "Go Concurrency", Status: StatusPublished, PublishedAt: &published, CategoryID: 5})
	m.PutPost(Post{ID: 2, Title: "Go Draft", Status: "draft", PublishedAt: &published})

	posts, err := m.SearchPosts(context.Background(), PostQuery{Term: "go", Now: baseTime})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(posts))

	m.FailWith(errors.New("down"))
	_, err = m.PublishedPosts(context.Background(), baseTime, 0)
	assert.Error(t, err)
	assert.Equal(t, int64(2), m.Calls())
}

func ids(posts []Post) []int64 {
	var out []int64
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()

	store, db, err := Open(ctx, SQLiteDriver, ":memory:", config.PostgresConfig{}, resilience.CircuitBreakerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	posts, err := store.PublishedPosts(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, _, err := Open(context.Background(), "oracle", "", config.PostgresConfig{}, resilience.CircuitBreakerConfig{})
	assert.ErrorContains(t, err, "unsupported content driver")
}
