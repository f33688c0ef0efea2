package indexer

import (
	"fmt"
	"strings"
	"time"

	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer/tokenizer"
)

// Searchable field names.
const (
	FieldTitle       = "title"
	FieldExcerpt     = "excerpt"
	FieldContent     = "content"
	FieldSlug        = "slug"
	FieldAuthor      = "author"
	FieldCategory    = "category"
	FieldTags        = "tags"
	FieldName        = "name"
	FieldDescription = "description"
)

// Entry is one indexed entity. The set of implementations is closed:
// PostEntry, TagEntry and CategoryEntry.
type Entry interface {
	EntryID() int64
	Kind() Type
	// CacheKey is the key of the snapshot the entry lives in.
	CacheKey() string
	// Field returns the named searchable field, or "" when the entry has
	// no such field.
	Field(name string) string
	isEntry()
}

// Phonetic holds precomputed Metaphone codes for the primary post fields.
type Phonetic struct {
	Title   []string `json:"title,omitempty"`
	Excerpt []string `json:"excerpt,omitempty"`
}

type PostEntry struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Excerpt      string    `json:"excerpt"`
	Content      string    `json:"content"`
	AuthorID     int64     `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Tags         []string  `json:"tags"`
	PublishedAt  time.Time `json:"published_at"`
	Phonetic     *Phonetic `json:"phonetic,omitempty"`
}

func (e PostEntry) EntryID() int64   { return e.ID }
func (e PostEntry) Kind() Type       { return Posts }
func (e PostEntry) CacheKey() string { return Posts.CacheKey() }
func (PostEntry) isEntry()           {}

func (e PostEntry) Field(name string) string {
	switch name {
	case FieldTitle:
		return e.Title
	case FieldExcerpt:
		return e.Excerpt
	case FieldContent:
		return e.Content
	case FieldSlug:
		return e.Slug
	case FieldAuthor:
		return e.AuthorName
	case FieldCategory:
		return e.CategoryName
	case FieldTags:
		return strings.Join(e.Tags, " ")
	}
	return ""
}

type TagEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (e TagEntry) EntryID() int64   { return e.ID }
func (e TagEntry) Kind() Type       { return Tags }
func (e TagEntry) CacheKey() string { return Tags.CacheKey() }
func (TagEntry) isEntry()           {}

func (e TagEntry) Field(name string) string {
	switch name {
	case FieldName, FieldTitle:
		return e.Name
	case FieldSlug:
		return e.Slug
	}
	return ""
}

type CategoryEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (e CategoryEntry) EntryID() int64   { return e.ID }
func (e CategoryEntry) Kind() Type       { return Categories }
func (e CategoryEntry) CacheKey() string { return Categories.CacheKey() }
func (CategoryEntry) isEntry()           {}

func (e CategoryEntry) Field(name string) string {
	switch name {
	case FieldName, FieldTitle:
		return e.Name
	case FieldDescription:
		return e.Description
	case FieldSlug:
		return e.Slug
	}
	return ""
}

// TypeOf returns the index type a content record belongs to.
func TypeOf(rec content.Record) (Type, error) {
	t := Type(rec.RecordKind())
	if !t.Valid() {
		return "", fmt.Errorf("record kind %q has no index", rec.RecordKind())
	}
	return t, nil
}

// Included reports whether rec belongs in its index at now. Only posts have
// an inclusion predicate; every tag and category is indexed.
func Included(rec content.Record, now time.Time) bool {
	if p, ok := rec.(content.Post); ok {
		return p.Searchable(now)
	}
	return true
}

// NewEntry projects a content record into its index entry. Phonetic codes
// are computed only when phonetic is set.
func NewEntry(rec content.Record, phonetic bool) (Entry, error) {
	switch r := rec.(type) {
	case content.Post:
		return projectPost(r, phonetic), nil
	case content.Tag:
		return TagEntry{ID: r.ID, Name: r.Name, Slug: r.Slug}, nil
	case content.Category:
		return CategoryEntry{ID: r.ID, Name: r.Name, Slug: r.Slug, Description: tokenizer.StripMarkup(r.Description)}, nil
	}
	return nil, fmt.Errorf("cannot index %T", rec)
}

func projectPost(p content.Post, phonetic bool) PostEntry {
	e := PostEntry{
		ID:           p.ID,
		Title:        p.Title,
		Slug:         p.Slug,
		Excerpt:      tokenizer.StripMarkup(p.Excerpt),
		Content:      tokenizer.StripMarkup(p.Content),
		AuthorID:     p.AuthorID,
		AuthorName:   p.AuthorName,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		Tags:         append([]string(nil), p.Tags...),
	}
	if p.PublishedAt != nil {
		e.PublishedAt = p.PublishedAt.UTC()
	}
	if phonetic {
		e.Phonetic = &Phonetic{
			Title:   tokenizer.PhoneticCodes(e.Title),
			Excerpt: tokenizer.PhoneticCodes(e.Excerpt),
		}
	}
	return e
}
