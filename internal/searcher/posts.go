package searcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/indexer/tokenizer"
	"github.com/goleaf/newsblog-search/internal/searcher/ranker"
	"github.com/goleaf/newsblog-search/internal/searcher/scorer"
)

// SearchPosts scores query against post titles and excerpts.
func (e *Engine) SearchPosts(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = e.normalize(opts, indexer.Posts)
	opts.Fields = nil
	return e.run(ctx, string(indexer.Posts), query, opts, e.MatchPosts, e.FallbackSearch)
}

// MatchPosts is the scoring pass behind SearchPosts. It never falls back
// itself: a timed out or failed outcome is for the caller to handle. query
// is expected to be validated already.
func (e *Engine) MatchPosts(ctx context.Context, query string, opts Options) Outcome {
	opts = e.normalize(opts, indexer.Posts)
	return e.matchPosts(ctx, query, opts, e.scorePost, func(q string, _ Options, entry indexer.PostEntry) map[string]string {
		if !opts.Highlight {
			return nil
		}
		return e.highlightPost(q, entry.Title, entry.Excerpt, entry.Content)
	})
}

// FallbackSearch is a plain substring query against the content store with
// the same filters and limit as the scored search. Every hit gets
// FallbackScore. Store failures are logged and produce no results.
func (e *Engine) FallbackSearch(ctx context.Context, query string, opts Options) []Result {
	opts = e.normalize(opts, indexer.Posts)
	q := strings.TrimSpace(query)
	posts, err := e.content.SearchPosts(ctx, e.postQuery(q, opts, e.now()))
	if err != nil {
		e.logger.Error("fallback search failed", "query", q, "error", err)
		return []Result{}
	}
	results := make([]Result, 0, len(posts))
	for _, p := range posts {
		r := postResult(p, FallbackScore, scorer.MatchFallback)
		if opts.Highlight {
			r.Highlights = e.highlightPost(q, p.Title, tokenizer.StripMarkup(p.Excerpt), tokenizer.StripMarkup(p.Content))
		}
		results = append(results, r)
	}
	return results
}

type postScoreFunc func(query string, opts Options, entry indexer.PostEntry) (score float64, field string, codes []string)

type postHighlightFunc func(query string, opts Options, entry indexer.PostEntry) map[string]string

// matchPosts pre-filters the posts snapshot, scores at most MaxCandidates
// entries, ranks the matches and hydrates them from the content store,
// re-checking the filters against the live rows.
func (e *Engine) matchPosts(ctx context.Context, query string, opts Options, score postScoreFunc, hl postHighlightFunc) (out Outcome) {
	defer e.recoverInto(&out, query)
	start := e.now()

	snap, err := e.index.GetIndex(ctx, indexer.Posts)
	if err != nil {
		return failed(fmt.Errorf("loading posts index: %w", err))
	}

	filter := e.postQuery(query, opts, start)
	type match struct {
		entry indexer.PostEntry
		field string
		codes []string
	}
	matches := make(map[int64]match)
	var scored []ranker.ScoredDoc
	considered := 0
	for _, p := range snap.Posts {
		if !entryAccepts(filter, p) {
			continue
		}
		if considered == e.cfg.MaxCandidates {
			break
		}
		if considered%clockStride == 0 {
			if late, stop := e.checkpoint(ctx, query, start); stop {
				return late
			}
		}
		considered++

		s, field, codes := score(query, opts, p)
		if e.scorer.Matches(s) {
			scored = append(scored, ranker.ScoredDoc{ID: p.ID, Score: s})
			matches[p.ID] = match{entry: p, field: field, codes: codes}
		}
	}
	if late, stop := e.checkpoint(ctx, query, start); stop {
		return late
	}

	ranked := ranker.Rank(scored, 0)
	results := make([]Result, 0, min(opts.Limit, len(ranked)))
	for offset := 0; offset < len(ranked) && len(results) < opts.Limit; offset += opts.Limit {
		if late, stop := e.checkpoint(ctx, query, start); stop {
			return late
		}
		batch := ranked[offset:min(offset+opts.Limit, len(ranked))]
		ids := make([]int64, len(batch))
		for i, d := range batch {
			ids[i] = d.ID
		}
		posts, err := e.content.PostsByIDs(ctx, ids)
		if err != nil {
			return failed(fmt.Errorf("hydrating posts: %w", err))
		}
		byID := make(map[int64]content.Post, len(posts))
		for _, p := range posts {
			byID[p.ID] = p
		}
		for _, d := range batch {
			post, found := byID[d.ID]
			if !found || !filter.Accepts(post) {
				continue
			}
			m := matches[d.ID]
			r := postResult(post, round(d.Score), e.scorer.ClassifyWithCodes(query, m.entry.Field(m.field), m.codes))
			r.Highlights = hl(query, opts, m.entry)
			results = append(results, r)
			if len(results) == opts.Limit {
				break
			}
		}
	}
	return ok(results)
}

// scorePost rates an entry as the better of its title and half its
// excerpt.
func (e *Engine) scorePost(query string, _ Options, p indexer.PostEntry) (float64, string, []string) {
	var titleCodes, excerptCodes []string
	if p.Phonetic != nil {
		titleCodes, excerptCodes = p.Phonetic.Title, p.Phonetic.Excerpt
	}
	title := e.scorer.ScoreWithCodes(query, p.Title, titleCodes)
	if title >= scorer.ScoreSubstring || p.Excerpt == "" {
		return title, indexer.FieldTitle, titleCodes
	}
	excerpt := secondaryWeight * e.scorer.ScoreWithCodes(query, p.Excerpt, excerptCodes)
	if excerpt > title {
		return excerpt, indexer.FieldExcerpt, excerptCodes
	}
	return title, indexer.FieldTitle, titleCodes
}

func (e *Engine) highlightPost(query, title, excerpt, body string) map[string]string {
	h := map[string]string{indexer.FieldTitle: e.highlighter.Highlight(title, query)}
	if excerpt != "" {
		h[indexer.FieldExcerpt] = e.highlighter.ExtractContext(excerpt, query)
	}
	if body != "" {
		h[indexer.FieldContent] = e.highlighter.ExtractContext(body, query)
	}
	return h
}

func (e *Engine) postQuery(term string, opts Options, now time.Time) content.PostQuery {
	return content.PostQuery{
		Term:       term,
		Now:        now,
		CategoryID: opts.CategoryID,
		AuthorID:   opts.AuthorID,
		From:       opts.From,
		To:         opts.To,
		Limit:      opts.Limit,
	}
}

// entryAccepts is PostQuery.Accepts for an index entry. Entries only exist
// for published posts, so status is implied.
func entryAccepts(q content.PostQuery, p indexer.PostEntry) bool {
	switch {
	case p.PublishedAt.IsZero() || p.PublishedAt.After(q.Now):
		return false
	case q.CategoryID != 0 && p.CategoryID != q.CategoryID:
		return false
	case q.AuthorID != 0 && p.AuthorID != q.AuthorID:
		return false
	case q.From != nil && p.PublishedAt.Before(*q.From):
		return false
	case q.To != nil && p.PublishedAt.After(*q.To):
		return false
	}
	return true
}

func postResult(p content.Post, score float64, mt scorer.MatchType) Result {
	return Result{
		Type:      indexer.Posts,
		ID:        p.ID,
		Score:     score,
		MatchType: mt,
		Title:     p.Title,
		Slug:      p.Slug,
		Post:      &p,
	}
}
