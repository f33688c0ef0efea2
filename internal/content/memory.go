package content

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	posts      map[int64]Post
	tags       map[int64]Tag
	categories map[int64]Category
	failWith   error
	calls      atomic.Int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:      make(map[int64]Post),
		tags:       make(map[int64]Tag),
		categories: make(map[int64]Category),
	}
}

func (m *MemoryStore) PutPost(p Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

func (m *MemoryStore) PutTag(t Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[t.ID] = t
}

func (m *MemoryStore) PutCategory(c Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
}

func (m *MemoryStore) DeletePost(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
}

// FailWith makes every subsequent read return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns how many reads the store has served.
func (m *MemoryStore) Calls() int64 {
	return m.calls.Load()
}

func (m *MemoryStore) begin() (func(), error) {
	m.calls.Add(1)
	m.mu.RLock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.RUnlock()
		return nil, err
	}
	return m.mu.RUnlock, nil
}

func (m *MemoryStore) PublishedPosts(_ context.Context, now time.Time, limit int) ([]Post, error) {
	done, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	q := PostQuery{Now: now}
	var out []Post
	for _, p := range m.posts {
		if q.Accepts(p) {
			out = append(out, p)
		}
	}
	sortPostsNewestFirst(out)
	return truncate(out, limit), nil
}

func (m *MemoryStore) Post(_ context.Context, id int64) (Post, error) {
	done, err := m.begin()
	if err != nil {
		return Post{}, err
	}
	defer done()
	p, ok := m.posts[id]
	if !ok {
		return Post{}, fmt.Errorf("post %d: %w", id, apperrors.ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) PostsByIDs(_ context.Context, ids []int64) ([]Post, error) {
	done, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) Tags(_ context.Context, limit int) ([]Tag, error) {
	done, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tag) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) Tag(_ context.Context, id int64) (Tag, error) {
	done, err := m.begin()
	if err != nil {
		return Tag{}, err
	}
	defer done()
	t, ok := m.tags[id]
	if !ok {
		return Tag{}, fmt.Errorf("tag %d: %w", id, apperrors.ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) Categories(_ context.Context, limit int) ([]Category, error) {
	done, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Category) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) Category(_ context.Context, id int64) (Category, error) {
	done, err := m.begin()
	if err != nil {
		return Category{}, err
	}
	defer done()
	c, ok := m.categories[id]
	if !ok {
		return Category{}, fmt.Errorf("category %d: %w", id, apperrors.ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) SearchPosts(_ context.Context, q PostQuery) ([]Post, error) {
	done, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	var out []Post
	for _, p := range m.posts {
		if !q.Accepts(p) {
			continue
		}
		if containsFold(p.Title, q.Term) || containsFold(p.Excerpt, q.Term) || containsFold(p.Content, q.Term) {
			out = append(out, p)
		}
	}
	sortPostsNewestFirst(out)
	return truncate(out, q.Limit), nil
}

func (m *MemoryStore) SearchTags(ctx context.Context, term string, limit int) ([]Tag, error) {
	all, err := m.Tags(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(t Tag) bool { return !containsFold(t.Name, term) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) SearchCategories(ctx context.Context, term string, limit int) ([]Category, error) {
	all, err := m.Categories(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(c Category) bool {
		return !containsFold(c.Name, term) && !containsFold(c.Description, term)
	})
	return truncate(out, limit), nil
}

func sortPostsNewestFirst(posts []Post) {
	slices.SortFunc(posts, func(a, b Post) int {
		if c := b.PublishedAt.Compare(*a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
