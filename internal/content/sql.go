package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/resilience"
)

// Schema creates the tables SQLStore reads. It is valid for both PostgreSQL
// and SQLite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		id   BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          BIGINT PRIMARY KEY,
		name        TEXT NOT NULL,
		slug        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id   BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id           BIGINT PRIMARY KEY,
		title        TEXT NOT NULL,
		slug         TEXT NOT NULL,
		excerpt      TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		published_at TIMESTAMP NULL,
		author_id    BIGINT NULL,
		category_id  BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS post_tag (
		post_id BIGINT NOT NULL,
		tag_id  BIGINT NOT NULL,
		PRIMARY KEY (post_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_status_published ON posts (status, published_at)`,
}

const postColumns = `
	SELECT p.id, p.title, p.slug, p.excerpt, p.content, p.status, p.published_at,
	       COALESCE(p.author_id, 0), COALESCE(a.name, ''),
	       COALESCE(p.category_id, 0), COALESCE(c.name, ''), COALESCE(c.slug, '')
	FROM posts p
	LEFT JOIN authors a ON a.id = p.author_id
	LEFT JOIN categories c ON c.id = p.category_id`

const searchablePredicate = `p.status = ? AND p.published_at IS NOT NULL AND p.published_at <= ?`

// tag lookups are split so the IN list stays under driver parameter limits.
const tagBatchSize = 500

// SQLStore reads content through database/sql. Queries are written with '?'
// placeholders and rebound for the postgres driver. Every read goes through
// a circuit breaker so a dead database fails fast instead of stalling each
// request until its deadline.
type SQLStore struct {
	db      *sql.DB
	driver  string
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewSQLStore wraps an open database. driver is the database/sql driver
// name, "postgres" or "sqlite3".
func NewSQLStore(db *sql.DB, driver string, breakerCfg resilience.CircuitBreakerConfig) *SQLStore {
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = func(err error) bool {
			return !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, context.Canceled)
		}
	}
	return &SQLStore{
		db:      db,
		driver:  driver,
		breaker: resilience.NewCircuitBreaker("content-store", breakerCfg),
		logger:  slog.Default().With("component", "content-store", "driver", driver),
	}
}

// Migrate creates any missing tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating content schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) PublishedPosts(ctx context.Context, now time.Time, limit int) ([]Post, error) {
	return guarded(s, func() ([]Post, error) {
		query := postColumns + ` WHERE ` + searchablePredicate + ` ORDER BY p.published_at DESC, p.id DESC`
		args := []any{StatusPublished, now.UTC()}
		query, args = withLimit(query, args, limit)
		return s.queryPosts(ctx, query, args...)
	})
}

func (s *SQLStore) Post(ctx context.Context, id int64) (Post, error) {
	return guarded(s, func() (Post, error) {
		posts, err := s.queryPosts(ctx, postColumns+` WHERE p.id = ?`, id)
		if err != nil {
			return Post{}, err
		}
		if len(posts) == 0 {
			return Post{}, fmt.Errorf("post %d: %w", id, apperrors.ErrNotFound)
		}
		return posts[0], nil
	})
}

func (s *SQLStore) PostsByIDs(ctx context.Context, ids []int64) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return guarded(s, func() ([]Post, error) {
		var out []Post
		for start := 0; start < len(ids); start += tagBatchSize {
			chunk := ids[start:min(start+tagBatchSize, len(ids))]
			in, args := inList(chunk)
			posts, err := s.queryPosts(ctx, postColumns+` WHERE p.id IN (`+in+`)`, args...)
			if err != nil {
				return nil, err
			}
			out = append(out, posts...)
		}
		return out, nil
	})
}

func (s *SQLStore) Tags(ctx context.Context, limit int) ([]Tag, error) {
	return guarded(s, func() ([]Tag, error) {
		query, args := withLimit(`SELECT id, name, slug FROM tags ORDER BY name, id`, nil, limit)
		return s.queryTags(ctx, query, args...)
	})
}

func (s *SQLStore) Tag(ctx context.Context, id int64) (Tag, error) {
	return guarded(s, func() (Tag, error) {
		tags, err := s.queryTags(ctx, `SELECT id, name, slug FROM tags WHERE id = ?`, id)
		if err != nil {
			return Tag{}, err
		}
		if len(tags) == 0 {
			return Tag{}, fmt.Errorf("tag %d: %w", id, apperrors.ErrNotFound)
		}
		return tags[0], nil
	})
}

func (s *SQLStore) Categories(ctx context.Context, limit int) ([]Category, error) {
	return guarded(s, func() ([]Category, error) {
		query, args := withLimit(`SELECT id, name, slug, description FROM categories ORDER BY name, id`, nil, limit)
		return s.queryCategories(ctx, query, args...)
	})
}

func (s *SQLStore) Category(ctx context.Context, id int64) (Category, error) {
	return guarded(s, func() (Category, error) {
		cats, err := s.queryCategories(ctx, `SELECT id, name, slug, description FROM categories WHERE id = ?`, id)
		if err != nil {
			return Category{}, err
		}
		if len(cats) == 0 {
			return Category{}, fmt.Errorf("category %d: %w", id, apperrors.ErrNotFound)
		}
		return cats[0], nil
	})
}

func (s *SQLStore) SearchPosts(ctx context.Context, q PostQuery) ([]Post, error) {
	return guarded(s, func() ([]Post, error) {
		var b strings.Builder
		b.WriteString(postColumns)
		b.WriteString(` WHERE ` + searchablePredicate)
		args := []any{StatusPublished, q.Now.UTC()}

		like := likePattern(q.Term)
		b.WriteString(` AND (LOWER(p.title) LIKE ? ESCAPE '\' OR LOWER(p.excerpt) LIKE ? ESCAPE '\' OR LOWER(p.content) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)

		if q.CategoryID != 0 {
			b.WriteString(` AND p.category_id = ?`)
			args = append(args, q.CategoryID)
		}
		if q.AuthorID != 0 {
			b.WriteString(` AND p.author_id = ?`)
			args = append(args, q.AuthorID)
		}
		if q.From != nil {
			b.WriteString(` AND p.published_at >= ?`)
			args = append(args, q.From.UTC())
		}
		if q.To != nil {
			b.WriteString(` AND p.published_at <= ?`)
			args = append(args, q.To.UTC())
		}
		b.WriteString(` ORDER BY p.published_at DESC, p.id DESC`)
		query, args := withLimit(b.String(), args, q.Limit)
		return s.queryPosts(ctx, query, args...)
	})
}

func (s *SQLStore) SearchTags(ctx context.Context, term string, limit int) ([]Tag, error) {
	return guarded(s, func() ([]Tag, error) {
		query, args := withLimit(
			`SELECT id, name, slug FROM tags WHERE LOWER(name) LIKE ? ESCAPE '\' ORDER BY name, id`,
			[]any{likePattern(term)}, limit)
		return s.queryTags(ctx, query, args...)
	})
}

func (s *SQLStore) SearchCategories(ctx context.Context, term string, limit int) ([]Category, error) {
	return guarded(s, func() ([]Category, error) {
		like := likePattern(term)
		query, args := withLimit(
			`SELECT id, name, slug, description FROM categories
			 WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'
			 ORDER BY name, id`,
			[]any{like, like}, limit)
		return s.queryCategories(ctx, query, args...)
	})
}

func (s *SQLStore) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p           Post
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Excerpt, &p.Content, &p.Status, &publishedAt,
			&p.AuthorID, &p.AuthorName, &p.CategoryID, &p.CategoryName, &p.CategorySlug); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		if publishedAt.Valid {
			t := publishedAt.Time.UTC()
			p.PublishedAt = &t
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	rows.Close()
	if err := s.attachTags(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *SQLStore) attachTags(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	byID := make(map[int64]int, len(posts))
	ids := make([]int64, len(posts))
	for i, p := range posts {
		byID[p.ID] = i
		ids[i] = p.ID
	}
	for start := 0; start < len(ids); start += tagBatchSize {
		chunk := ids[start:min(start+tagBatchSize, len(ids))]
		in, args := inList(chunk)
		rows, err := s.db.QueryContext(ctx, s.rebind(
			`SELECT pt.post_id, t.name FROM post_tag pt
			 JOIN tags t ON t.id = pt.tag_id
			 WHERE pt.post_id IN (`+in+`)
			 ORDER BY t.name`), args...)
		if err != nil {
			return fmt.Errorf("querying post tags: %w", err)
		}
		for rows.Next() {
			var (
				postID int64
				name   string
			)
			if err := rows.Scan(&postID, &name); err != nil {
				rows.Close()
				return fmt.Errorf("scanning post tag: %w", err)
			}
			i := byID[postID]
			posts[i].Tags = append(posts[i].Tags, name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterating post tags: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) queryTags(ctx context.Context, query string, args ...any) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *SQLStore) queryCategories(ctx context.Context, query string, args ...any) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// rebind rewrites '?' placeholders as $1..$n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func guarded[T any](s *SQLStore, fn func() (T, error)) (T, error) {
	var out T
	err := s.breaker.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		s.logger.Warn("content store read rejected", "error", err)
	}
	return out, err
}

func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + ` LIMIT ?`, append(args, limit)
}

func inList(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}
