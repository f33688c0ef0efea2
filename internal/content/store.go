package content

import (
	"context"
	"strings"
	"time"
)

// Store reads posts, tags and categories. Single-row lookups return an error
// wrapping errors.ErrNotFound when the row does not exist.
type Store interface {
	// PublishedPosts returns up to limit posts searchable at now, newest first.
	PublishedPosts(ctx context.Context, now time.Time, limit int) ([]Post, error)
	Post(ctx context.Context, id int64) (Post, error)
	// PostsByIDs returns the posts that still exist among ids, in no
	// particular order.
	PostsByIDs(ctx context.Context, ids []int64) ([]Post, error)
	Tags(ctx context.Context, limit int) ([]Tag, error)
	Tag(ctx context.Context, id int64) (Tag, error)
	Categories(ctx context.Context, limit int) ([]Category, error)
	Category(ctx context.Context, id int64) (Category, error)

	// SearchPosts is a plain case-insensitive substring search over title,
	// excerpt and content, restricted to searchable posts.
	SearchPosts(ctx context.Context, q PostQuery) ([]Post, error)
	SearchTags(ctx context.Context, term string, limit int) ([]Tag, error)
	SearchCategories(ctx context.Context, term string, limit int) ([]Category, error)
}

// PostQuery is a substring query with optional structured filters. Zero
// values disable a filter.
type PostQuery struct {
	Term       string
	Now        time.Time
	CategoryID int64
	AuthorID   int64
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Accepts reports whether p passes every structured filter of q, including
// the searchable predicate. The term is not considered.
func (q PostQuery) Accepts(p Post) bool {
	if !p.Searchable(q.Now) {
		return false
	}
	if q.CategoryID != 0 && p.CategoryID != q.CategoryID {
		return false
	}
	if q.AuthorID != 0 && p.AuthorID != q.AuthorID {
		return false
	}
	if q.From != nil && p.PublishedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && p.PublishedAt.After(*q.To) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
