// Package content is the read side of the primary content store: the post,
// tag and category rows the search index is built from.
package content

import "time"

// Record kinds. They double as index type names.
const (
	KindPost     = "posts"
	KindTag      = "tags"
	KindCategory = "categories"
)

// StatusPublished is the only post status visible to search.
const StatusPublished = "published"

// Record is any row the index can be built from.
type Record interface {
	RecordID() int64
	RecordKind() string
}

// Post is a blog post joined with its author, category and tag names.
type Post struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Excerpt      string     `json:"excerpt"`
	Content      string     `json:"content"`
	Status       string     `json:"status"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	AuthorID     int64      `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	CategoryID   int64      `json:"category_id"`
	CategoryName string     `json:"category_name"`
	CategorySlug string     `json:"category_slug"`
	Tags         []string   `json:"tags"`
}

func (p Post) RecordID() int64    { return p.ID }
func (p Post) RecordKind() string { return KindPost }

// Searchable reports whether the post may appear in search results at now:
// it is published and its publication time is set and not in the future.
func (p Post) Searchable(now time.Time) bool {
	return p.Status == StatusPublished && p.PublishedAt != nil && !p.PublishedAt.After(now)
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (t Tag) RecordID() int64    { return t.ID }
func (t Tag) RecordKind() string { return KindTag }

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (c Category) RecordID() int64    { return c.ID }
func (c Category) RecordKind() string { return KindCategory }
