// Package searcher is the match engine: it scores a query against the
// cached index snapshots, ranks and hydrates the matches, and falls back to
// a plain substring query against the content store when matching is slow
// or fails.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/goleaf/newsblog-search/internal/analytics"
	"github.com/goleaf/newsblog-search/internal/cache"
	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	resultcache "github.com/goleaf/newsblog-search/internal/searcher/cache"
	"github.com/goleaf/newsblog-search/internal/searcher/highlight"
	"github.com/goleaf/newsblog-search/internal/searcher/scorer"
	"github.com/goleaf/newsblog-search/internal/searcher/validator"
	"github.com/goleaf/newsblog-search/pkg/config"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/logger"
	"github.com/goleaf/newsblog-search/pkg/metrics"
)

const (
	// FallbackScore is the placeholder relevance of substring fallback hits.
	FallbackScore = 50.0

	// excerpts and category descriptions count half as much as the
	// primary field.
	secondaryWeight = 0.5

	// the duration ceiling is checked every clockStride candidates.
	clockStride = 64

	defaultSuggestions = 5
)

// IndexSource hands out read-only index snapshots.
type IndexSource interface {
	GetIndex(ctx context.Context, t indexer.Type) (*indexer.Snapshot, error)
}

// Options are the structured parts of a search. Zero values disable a
// filter. Every field takes part in the result cache key.
type Options struct {
	Type       indexer.Type `json:"type"`
	CategoryID int64        `json:"category_id,omitempty"`
	AuthorID   int64        `json:"author_id,omitempty"`
	From       *time.Time   `json:"from,omitempty"`
	To         *time.Time   `json:"to,omitempty"`
	Limit      int          `json:"limit"`
	Highlight  bool         `json:"highlight,omitempty"`
	Fields     []string     `json:"fields,omitempty"`
}

// Result is one ranked match. Exactly one of Post, Tag and Category is set,
// matching Type.
type Result struct {
	Type       indexer.Type      `json:"type"`
	ID         int64             `json:"id"`
	Score      float64           `json:"score"`
	MatchType  scorer.MatchType  `json:"match_type"`
	Title      string            `json:"title"`
	Slug       string            `json:"slug,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
	Post       *content.Post     `json:"post,omitempty"`
	Tag        *content.Tag      `json:"tag,omitempty"`
	Category   *content.Category `json:"category,omitempty"`
}

type Option func(*Engine)

// WithClock overrides the time source used for publication filters and for
// measuring search duration.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type Engine struct {
	cfg         config.SearchConfig
	index       IndexSource
	content     content.Store
	results     *resultcache.ResultCache
	sink        analytics.Sink
	scorer      scorer.Scorer
	highlighter highlight.Highlighter
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *slog.Logger
}

// New builds an engine. With cfg.CacheEnabled false, or a nil cache, every
// call computes its results.
func New(cfg config.SearchConfig, idx IndexSource, src content.Store, c cache.Cache, sink analytics.Sink, opts ...Option) *Engine {
	if c == nil || !cfg.CacheEnabled {
		c = cache.Null{}
	}
	if sink == nil {
		sink = analytics.Nop{}
	}
	e := &Engine{
		cfg:         cfg,
		index:       idx,
		content:     src,
		results:     resultcache.New(c),
		sink:        sink,
		scorer:      scorer.New(cfg),
		highlighter: highlight.New(cfg),
		now:         time.Now,
		logger:      slog.Default().With("component", "match-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResultCache exposes the result cache for stats and invalidation.
func (e *Engine) ResultCache() *resultcache.ResultCache {
	return e.results
}

// Search dispatches on opts.Type; an empty type searches posts.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	switch opts.Type {
	case "", indexer.Posts:
		return e.SearchPosts(ctx, query, opts)
	case indexer.Tags:
		return e.SearchTags(ctx, query, opts)
	case indexer.Categories:
		return e.SearchCategories(ctx, query, opts)
	}
	return nil, fmt.Errorf("search %q: %w", opts.Type, apperrors.ErrInvalidIndexType)
}

// HighlightMatches escapes text and marks every query word in it.
func (e *Engine) HighlightMatches(text, query string) string {
	return e.highlighter.Highlight(text, query)
}

// ExtractContext returns the escaped, highlighted window of text around the
// first match of query.
func (e *Engine) ExtractContext(text, query string) string {
	return e.highlighter.ExtractContext(text, query)
}

type matchFunc func(ctx context.Context, query string, opts Options) Outcome

type fallbackFunc func(ctx context.Context, query string, opts Options) []Result

// run validates the query, then serves it from the result cache or the
// matcher. Timeouts and failures go to fallback, whose results are never
// cached. Only validation errors are returned.
func (e *Engine) run(ctx context.Context, mode, query string, opts Options, match matchFunc, fallback fallbackFunc) ([]Result, error) {
	index := string(opts.Type)
	q, err := validator.Validate(query, e.cfg.MaxQueryLength)
	if err != nil {
		e.observe(index, "invalid", 0, 0)
		return nil, err
	}

	start := e.now()
	key := resultcache.Key(mode, q, opts)
	results, hit, err := resultcache.GetOrCompute(ctx, e.results, key, e.cfg.ResultCacheTTL, func() ([]Result, error) {
		out := match(ctx, q, opts)
		if out.Status != StatusOK {
			return nil, out.Err
		}
		return out.Results, nil
	})

	meta := analytics.Metadata{"index_type": index, "mode": mode}
	if opts.CategoryID != 0 {
		meta["category_id"] = opts.CategoryID
	}
	if opts.AuthorID != 0 {
		meta["author_id"] = opts.AuthorID
	}

	if err == nil {
		elapsed := e.now().Sub(start)
		e.cacheEvent(ctx, index, q, hit)
		meta["cached"] = hit
		e.emit(e.sink.LogQuery(ctx, q, len(results), elapsed, meta))
		outcome := "ok"
		if hit {
			outcome = "cached"
		}
		e.observe(index, outcome, elapsed, len(results))
		return results, nil
	}

	e.cacheEvent(ctx, index, q, false)
	reason := "failed"
	var timeout *SearchTimeoutError
	if errors.As(err, &timeout) {
		reason = "timeout"
		e.emit(e.sink.LogSlowQuery(ctx, q, timeout.Elapsed, meta))
		logger.FromContext(ctx).Warn("search exceeded duration ceiling, falling back",
			"query", q, "index", index, "elapsed", timeout.Elapsed, "limit", timeout.Limit)
	} else {
		logger.FromContext(ctx).Error("matching failed, falling back", "query", q, "index", index, "error", err)
	}

	results = fallback(ctx, q, opts)
	elapsed := e.now().Sub(start)
	meta["fallback"] = true
	meta["fallback_reason"] = reason
	e.emit(e.sink.LogQuery(ctx, q, len(results), elapsed, meta))
	e.observe(index, reason, elapsed, len(results))
	if e.metrics != nil {
		e.metrics.FallbacksTotal.WithLabelValues(index, reason).Inc()
	}
	return results, nil
}

// checkpoint ends a matching pass that has outlived its context or the
// duration ceiling.
func (e *Engine) checkpoint(ctx context.Context, query string, start time.Time) (Outcome, bool) {
	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("matching %q: %w", query, err)), true
	}
	elapsed := e.now().Sub(start)
	if e.cfg.MaxDuration > 0 && elapsed > e.cfg.MaxDuration {
		return Outcome{
			Status: StatusTimedOut,
			Err:    &SearchTimeoutError{Query: query, Elapsed: elapsed, Limit: e.cfg.MaxDuration},
		}, true
	}
	return Outcome{}, false
}

// recoverInto turns a panic in a matching pass into a failed outcome so a
// single bad entry cannot take the query down.
func (e *Engine) recoverInto(out *Outcome, query string) {
	if r := recover(); r != nil {
		e.logger.Error("matching panicked", "query", query, "panic", r)
		*out = failed(fmt.Errorf("%w: matching panicked: %v", apperrors.ErrInternal, r))
	}
}

func (e *Engine) normalize(opts Options, t indexer.Type) Options {
	opts.Type = t
	opts.Limit = e.limit(opts.Limit, e.cfg.DefaultLimit)
	if opts.From != nil {
		from := opts.From.UTC()
		opts.From = &from
	}
	if opts.To != nil {
		to := opts.To.UTC()
		opts.To = &to
	}
	return opts
}

func (e *Engine) limit(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested <= 0 {
		requested = 1
	}
	if e.cfg.MaxLimit > 0 && requested > e.cfg.MaxLimit {
		requested = e.cfg.MaxLimit
	}
	return requested
}

func (e *Engine) cacheEvent(ctx context.Context, index, query string, hit bool) {
	if hit {
		e.emit(e.sink.LogCacheHit(ctx, index, query))
		if e.metrics != nil {
			e.metrics.CacheHitsTotal.WithLabelValues(index).Inc()
		}
		return
	}
	e.emit(e.sink.LogCacheMiss(ctx, index, query))
	if e.metrics != nil {
		e.metrics.CacheMissesTotal.WithLabelValues(index).Inc()
	}
}

func (e *Engine) observe(index, outcome string, d time.Duration, count int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(index, outcome).Inc()
	if outcome == "invalid" {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(index).Observe(d.Seconds())
	e.metrics.SearchResultsCount.WithLabelValues(index).Observe(float64(count))
}

// emit logs and swallows analytics failures.
func (e *Engine) emit(err error) {
	if err != nil {
		e.logger.Warn("analytics event dropped", "error", err)
	}
}

func round(score float64) float64 {
	return math.Round(score*100) / 100
}
