package searcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/searcher/ranker"
	"github.com/goleaf/newsblog-search/internal/searcher/scorer"
)

// SearchTags scores query against tag names. Only opts.Limit and
// opts.Highlight apply.
func (e *Engine) SearchTags(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = e.taxonomyOptions(opts, indexer.Tags)
	return e.run(ctx, string(indexer.Tags), query, opts, e.matchTags, e.fallbackTags)
}

// SearchCategories scores query against category names and, at half
// weight, descriptions. Only opts.Limit and opts.Highlight apply.
func (e *Engine) SearchCategories(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = e.taxonomyOptions(opts, indexer.Categories)
	return e.run(ctx, string(indexer.Categories), query, opts, e.matchCategories, e.fallbackCategories)
}

func (e *Engine) taxonomyOptions(opts Options, t indexer.Type) Options {
	return e.normalize(Options{Limit: opts.Limit, Highlight: opts.Highlight}, t)
}

func (e *Engine) matchTags(ctx context.Context, query string, opts Options) (out Outcome) {
	defer e.recoverInto(&out, query)
	start := e.now()
	snap, err := e.index.GetIndex(ctx, indexer.Tags)
	if err != nil {
		return failed(fmt.Errorf("loading tags index: %w", err))
	}
	return matchEntries(ctx, e, query, opts, start, snap.Tags,
		func(t indexer.TagEntry) (float64, string) {
			return e.scorer.Score(query, t.Name), indexer.FieldName
		},
		func(t indexer.TagEntry, score float64, field string) Result {
			r := Result{
				Type:      indexer.Tags,
				ID:        t.ID,
				Score:     round(score),
				MatchType: e.scorer.Classify(query, t.Name),
				Title:     t.Name,
				Slug:      t.Slug,
				Tag:       &content.Tag{ID: t.ID, Name: t.Name, Slug: t.Slug},
			}
			if opts.Highlight {
				r.Highlights = map[string]string{indexer.FieldName: e.highlighter.Highlight(t.Name, query)}
			}
			return r
		})
}

func (e *Engine) matchCategories(ctx context.Context, query string, opts Options) (out Outcome) {
	defer e.recoverInto(&out, query)
	start := e.now()
	snap, err := e.index.GetIndex(ctx, indexer.Categories)
	if err != nil {
		return failed(fmt.Errorf("loading categories index: %w", err))
	}
	return matchEntries(ctx, e, query, opts, start, snap.Categories,
		func(c indexer.CategoryEntry) (float64, string) {
			name := e.scorer.Score(query, c.Name)
			if c.Description == "" {
				return name, indexer.FieldName
			}
			if desc := secondaryWeight * e.scorer.Score(query, c.Description); desc > name {
				return desc, indexer.FieldDescription
			}
			return name, indexer.FieldName
		},
		func(c indexer.CategoryEntry, score float64, field string) Result {
			r := Result{
				Type:      indexer.Categories,
				ID:        c.ID,
				Score:     round(score),
				MatchType: e.scorer.Classify(query, c.Field(field)),
				Title:     c.Name,
				Slug:      c.Slug,
				Category:  &content.Category{ID: c.ID, Name: c.Name, Slug: c.Slug, Description: c.Description},
			}
			if opts.Highlight {
				r.Highlights = map[string]string{indexer.FieldName: e.highlighter.Highlight(c.Name, query)}
				if c.Description != "" {
					r.Highlights[indexer.FieldDescription] = e.highlighter.ExtractContext(c.Description, query)
				}
			}
			return r
		})
}

// matchEntries scores up to MaxCandidates entries and builds results for
// the best opts.Limit matches. Tag and category entries are complete
// projections, so there is no hydration step.
func matchEntries[E indexer.Entry](
	ctx context.Context,
	e *Engine,
	query string,
	opts Options,
	start time.Time,
	entries []E,
	score func(E) (float64, string),
	build func(E, float64, string) Result,
) Outcome {
	type match struct {
		entry E
		field string
	}
	matches := make(map[int64]match)
	var scored []ranker.ScoredDoc
	for i, entry := range entries {
		if i == e.cfg.MaxCandidates {
			break
		}
		if i%clockStride == 0 {
			if late, stop := e.checkpoint(ctx, query, start); stop {
				return late
			}
		}
		s, field := score(entry)
		if e.scorer.Matches(s) {
			scored = append(scored, ranker.ScoredDoc{ID: entry.EntryID(), Score: s})
			matches[entry.EntryID()] = match{entry: entry, field: field}
		}
	}
	if late, stop := e.checkpoint(ctx, query, start); stop {
		return late
	}

	ranked := ranker.Rank(scored, opts.Limit)
	results := make([]Result, 0, len(ranked))
	for _, d := range ranked {
		m := matches[d.ID]
		results = append(results, build(m.entry, d.Score, m.field))
	}
	return ok(results)
}

func (e *Engine) fallbackTags(ctx context.Context, query string, opts Options) []Result {
	tags, err := e.content.SearchTags(ctx, strings.TrimSpace(query), opts.Limit)
	if err != nil {
		e.logger.Error("tag fallback search failed", "query", query, "error", err)
		return []Result{}
	}
	results := make([]Result, 0, len(tags))
	for _, t := range tags {
		results = append(results, Result{
			Type:      indexer.Tags,
			ID:        t.ID,
			Score:     FallbackScore,
			MatchType: scorer.MatchFallback,
			Title:     t.Name,
			Slug:      t.Slug,
			Tag:       &t,
		})
	}
	return results
}

func (e *Engine) fallbackCategories(ctx context.Context, query string, opts Options) []Result {
	cats, err := e.content.SearchCategories(ctx, strings.TrimSpace(query), opts.Limit)
	if err != nil {
		e.logger.Error("category fallback search failed", "query", query, "error", err)
		return []Result{}
	}
	results := make([]Result, 0, len(cats))
	for _, c := range cats {
		results = append(results, Result{
			Type:      indexer.Categories,
			ID:        c.ID,
			Score:     FallbackScore,
			MatchType: scorer.MatchFallback,
			Title:     c.Name,
			Slug:      c.Slug,
			Category:  &c,
		})
	}
	return results
}
