package indexer

import (
	"cmp"
	"slices"
	"time"
)

// Snapshot is the full ordered entry set of one index type. The engine
// treats it as read-only; every change goes through Store, which replaces
// the cached value as a whole.
type Snapshot struct {
	Type       Type            `json:"type"`
	BuiltAt    time.Time       `json:"built_at"`
	Posts      []PostEntry     `json:"posts,omitempty"`
	Tags       []TagEntry      `json:"tags,omitempty"`
	Categories []CategoryEntry `json:"categories,omitempty"`
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	switch s.Type {
	case Posts:
		return len(s.Posts)
	case Tags:
		return len(s.Tags)
	case Categories:
		return len(s.Categories)
	}
	return 0
}

// put replaces the entry with the same id, or inserts it in order, then
// trims the snapshot to maxItems.
func (s *Snapshot) put(e Entry, maxItems int) {
	switch v := e.(type) {
	case PostEntry:
		s.Posts = upsert(s.Posts, v, comparePosts, maxItems)
	case TagEntry:
		s.Tags = upsert(s.Tags, v, compareTags, maxItems)
	case CategoryEntry:
		s.Categories = upsert(s.Categories, v, compareCategories, maxItems)
	}
}

// remove deletes the entry with id and reports whether one was present.
func (s *Snapshot) remove(id int64) bool {
	var removed bool
	switch s.Type {
	case Posts:
		s.Posts, removed = without(s.Posts, id)
	case Tags:
		s.Tags, removed = without(s.Tags, id)
	case Categories:
		s.Categories, removed = without(s.Categories, id)
	}
	return removed
}

func (s *Snapshot) sort() {
	slices.SortStableFunc(s.Posts, comparePosts)
	slices.SortStableFunc(s.Tags, compareTags)
	slices.SortStableFunc(s.Categories, compareCategories)
}

// Posts are newest first; tags and categories are alphabetical.
func comparePosts(a, b PostEntry) int {
	return cmp.Or(b.PublishedAt.Compare(a.PublishedAt), cmp.Compare(b.ID, a.ID))
}

func compareTags(a, b TagEntry) int {
	return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
}

func compareCategories(a, b CategoryEntry) int {
	return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
}

type identified interface{ EntryID() int64 }

func without[E identified](entries []E, id int64) ([]E, bool) {
	n := len(entries)
	entries = slices.DeleteFunc(entries, func(e E) bool { return e.EntryID() == id })
	return entries, len(entries) != n
}

func upsert[E identified](entries []E, e E, compare func(a, b E) int, maxItems int) []E {
	entries, _ = without(entries, e.EntryID())
	pos, _ := slices.BinarySearchFunc(entries, e, compare)
	entries = slices.Insert(entries, pos, e)
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}
	return entries
}
