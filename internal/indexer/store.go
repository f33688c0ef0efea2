package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/pkg/config"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/metrics"
)

// Config controls snapshot lifetime and size.
type Config struct {
	TTL             time.Duration
	MaxItems        int
	PhoneticEnabled bool
}

// ConfigFrom extracts the index settings from the search configuration.
func ConfigFrom(sc config.SearchConfig) Config {
	return Config{
		TTL:             sc.IndexCacheTTL,
		MaxItems:        sc.MaxIndexItems,
		PhoneticEnabled: sc.PhoneticEnabled,
	}
}

// Stats is the diagnostic readout for one index type.
type Stats struct {
	Count   int       `json:"count"`
	Cached  bool      `json:"cached"`
	BuiltAt time.Time `json:"built_at,omitzero"`
}

type Option func(*Store)

// WithClock overrides the time source used for the posts inclusion
// predicate and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records index sizes and rebuild outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store owns the per-type snapshots.
//
// GetIndex is check-then-rebuild without locking: concurrent misses for
// the same type each rebuild and write the same key. Incremental writes
// read-modify-write the whole snapshot, so concurrent writers are
// last-write-wins. Both are tolerated because snapshots are periodically
// rebuilt wholesale from the content store.
type Store struct {
	content content.Store
	cache   cache.Cache
	sink    analytics.Sink
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func NewStore(src content.Store, c cache.Cache, sink analytics.Sink, cfg Config, opts ...Option) *Store {
	if sink == nil {
		sink = analytics.Nop{}
	}
	s := &Store{
		content: src,
		cache:   c,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default().With("component", "index-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildAll rebuilds every index type and returns the total number of
// entries written. All types are fetched before any snapshot is replaced,
// so a content-store failure leaves every cached snapshot untouched.
func (s *Store) BuildAll(ctx context.Context) (int, error) {
	start := s.now()
	snapshots := make([]*Snapshot, 0, len(AllTypes))
	for _, t := range AllTypes {
		snap, err := s.fetch(ctx, t)
		if err != nil {
			s.recordRebuild(t, "error")
			return 0, &IndexBuildError{Type: t, Err: err}
		}
		snapshots = append(snapshots, snap)
	}

	total := 0
	for _, snap := range snapshots {
		if err := s.write(ctx, snap); err != nil {
			s.recordRebuild(snap.Type, "error")
			return total, &IndexBuildError{Type: snap.Type, Err: err}
		}
		total += snap.Len()
		s.rebuilt(ctx, snap, s.now().Sub(start))
	}
	s.logger.Info("all indexes built", "entries", total, "duration", s.now().Sub(start))
	return total, nil
}

// Rebuild replaces the snapshot of one type and returns its entry count.
func (s *Store) Rebuild(ctx context.Context, t Type) (int, error) {
	if !t.Valid() {
		return 0, &IndexBuildError{Type: t, Err: errInvalidType(t)}
	}
	start := s.now()
	snap, err := s.fetch(ctx, t)
	if err != nil {
		s.recordRebuild(t, "error")
		return 0, &IndexBuildError{Type: t, Err: err}
	}
	if err := s.write(ctx, snap); err != nil {
		s.recordRebuild(t, "error")
		return 0, &IndexBuildError{Type: t, Err: err}
	}
	s.rebuilt(ctx, snap, s.now().Sub(start))
	return snap.Len(), nil
}

// GetIndex returns the cached snapshot for t, building and caching it on a
// miss.
func (s *Store) GetIndex(ctx context.Context, t Type) (*Snapshot, error) {
	if !t.Valid() {
		return nil, &IndexBuildError{Type: t, Err: errInvalidType(t)}
	}
	start := s.now()
	snap, hit, err := cache.Remember(ctx, s.cache, t.CacheKey(), s.cfg.TTL, func(ctx context.Context) (*Snapshot, error) {
		return s.fetch(ctx, t)
	})
	if err != nil {
		s.recordRebuild(t, "error")
		return nil, &IndexBuildError{Type: t, Err: err}
	}
	if !hit {
		s.rebuilt(ctx, snap, s.now().Sub(start))
	}
	return snap, nil
}

// Index projects rec and splices it into its snapshot, replacing any entry
// with the same id. A record that fails its inclusion predicate is removed
// instead. Indexing the same record twice leaves one entry.
func (s *Store) Index(ctx context.Context, rec content.Record) error {
	t, err := TypeOf(rec)
	if err != nil {
		return err
	}
	if !Included(rec, s.now()) {
		return s.Remove(ctx, rec.RecordID(), t)
	}
	entry, err := NewEntry(rec, s.cfg.PhoneticEnabled)
	if err != nil {
		return err
	}
	return s.mutate(ctx, t, func(snap *Snapshot) bool {
		snap.put(entry, s.cfg.MaxItems)
		return true
	})
}

// Update is Remove followed by Index when rec is still included, and
// Remove alone otherwise. Both halves are applied in one write.
func (s *Store) Update(ctx context.Context, rec content.Record) error {
	t, err := TypeOf(rec)
	if err != nil {
		return err
	}
	if !Included(rec, s.now()) {
		return s.Remove(ctx, rec.RecordID(), t)
	}
	entry, err := NewEntry(rec, s.cfg.PhoneticEnabled)
	if err != nil {
		return err
	}
	return s.mutate(ctx, t, func(snap *Snapshot) bool {
		snap.remove(entry.EntryID())
		snap.put(entry, s.cfg.MaxItems)
		return true
	})
}

// Remove drops the entry with id from the snapshot of type t. Removing an
// absent entry is a no-op.
func (s *Store) Remove(ctx context.Context, id int64, t Type) error {
	if !t.Valid() {
		return errInvalidType(t)
	}
	return s.mutate(ctx, t, func(snap *Snapshot) bool {
		return snap.remove(id)
	})
}

// ClearIndex evicts every snapshot.
func (s *Store) ClearIndex(ctx context.Context) error {
	var errs []error
	for _, t := range AllTypes {
		if err := s.cache.Forget(ctx, t.CacheKey()); err != nil {
			errs = append(errs, fmt.Errorf("forgetting %s: %w", t, err))
			continue
		}
		if s.metrics != nil {
			s.metrics.IndexEntries.WithLabelValues(string(t)).Set(0)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("index cache cleared")
	return nil
}

// GetStats reports the cached entry count per type. It never builds a
// missing snapshot.
func (s *Store) GetStats(ctx context.Context) (map[Type]Stats, error) {
	out := make(map[Type]Stats, len(AllTypes))
	for _, t := range AllTypes {
		snap, ok, err := cache.Load[*Snapshot](ctx, s.cache, t.CacheKey())
		if err != nil {
			return nil, fmt.Errorf("reading %s index: %w", t, err)
		}
		if !ok || snap == nil {
			out[t] = Stats{}
			continue
		}
		out[t] = Stats{Count: snap.Len(), Cached: true, BuiltAt: snap.BuiltAt}
	}
	return out, nil
}

// mutate applies fn to the cached snapshot of t and writes it back when fn
// reports a change. An uncached snapshot is left alone: the next GetIndex
// rebuilds it from the content store, which already reflects the change.
func (s *Store) mutate(ctx context.Context, t Type, fn func(*Snapshot) bool) error {
	snap, ok, err := cache.Load[*Snapshot](ctx, s.cache, t.CacheKey())
	if err != nil {
		s.logger.Warn("discarding unreadable snapshot", "index", t, "error", err)
		return s.cache.Forget(ctx, t.CacheKey())
	}
	if !ok || snap == nil {
		s.logger.Debug("snapshot not cached, skipping incremental update", "index", t)
		return nil
	}
	if !fn(snap) {
		return nil
	}
	if err := s.write(ctx, snap); err != nil {
		return fmt.Errorf("writing %s index: %w", t, err)
	}
	if s.metrics != nil {
		s.metrics.IndexEntries.WithLabelValues(string(t)).Set(float64(snap.Len()))
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, t Type) (*Snapshot, error) {
	now := s.now()
	snap := &Snapshot{Type: t, BuiltAt: now.UTC()}
	limit := s.cfg.MaxItems

	switch t {
	case Posts:
		posts, err := s.content.PublishedPosts(ctx, now, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching posts: %w", err)
		}
		snap.Posts = make([]PostEntry, 0, len(posts))
		for _, p := range posts {
			if p.Searchable(now) {
				snap.Posts = append(snap.Posts, projectPost(p, s.cfg.PhoneticEnabled))
			}
		}
	case Tags:
		tags, err := s.content.Tags(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching tags: %w", err)
		}
		snap.Tags = make([]TagEntry, 0, len(tags))
		for _, tag := range tags {
			entry, _ := NewEntry(tag, false)
			snap.Tags = append(snap.Tags, entry.(TagEntry))
		}
	case Categories:
		cats, err := s.content.Categories(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching categories: %w", err)
		}
		snap.Categories = make([]CategoryEntry, 0, len(cats))
		for _, c := range cats {
			entry, _ := NewEntry(c, false)
			snap.Categories = append(snap.Categories, entry.(CategoryEntry))
		}
	}
	snap.sort()
	return snap, nil
}

func (s *Store) write(ctx context.Context, snap *Snapshot) error {
	return cache.Store(ctx, s.cache, snap.Type.CacheKey(), snap, s.cfg.TTL)
}

func (s *Store) rebuilt(ctx context.Context, snap *Snapshot, d time.Duration) {
	s.recordRebuild(snap.Type, "ok")
	if s.metrics != nil {
		s.metrics.IndexEntries.WithLabelValues(string(snap.Type)).Set(float64(snap.Len()))
	}
	if err := s.sink.LogIndexRebuilt(ctx, string(snap.Type), snap.Len(), d); err != nil {
		s.logger.Warn("analytics sink failed", "event", analytics.EventIndexRebuilt, "error", err)
	}
	s.logger.Info("index rebuilt", "index", snap.Type, "entries", snap.Len(), "duration", d)
}

func (s *Store) recordRebuild(t Type, status string) {
	if s.metrics != nil {
		s.metrics.IndexRebuildsTotal.WithLabelValues(string(t), status).Inc()
	}
}

func errInvalidType(t Type) error {
	return fmt.Errorf("%w: %q", apperrors.ErrInvalidIndexType, string(t))
}
