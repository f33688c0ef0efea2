package searcher

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/indexer/tokenizer"
	resultcache "github.com/goleaf/newsblog-search/internal/searcher/cache"
	"github.com/goleaf/newsblog-search/internal/searcher/ranker"
	"github.com/goleaf/newsblog-search/internal/searcher/scorer"
	"github.com/goleaf/newsblog-search/internal/searcher/validator"
	"github.com/goleaf/newsblog-search/pkg/logger"
)

const suggestionsIndex = "suggestions"

// GetSuggestions returns up to limit distinct post titles for an
// autocomplete prefix. Titles containing the prefix rank first, then fuzzy
// title matches. A prefix shorter than MinSuggestionLength returns nothing
// without reading the cache or the index.
func (e *Engine) GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if utf8.RuneCountInString(strings.TrimSpace(prefix)) < e.cfg.MinSuggestionLength {
		return []string{}, nil
	}
	p, err := validator.Validate(prefix, e.cfg.MaxQueryLength)
	if err != nil {
		return nil, err
	}
	limit = e.limit(limit, defaultSuggestions)

	key := resultcache.SuggestionKey(p, limit)
	titles, hit, err := resultcache.GetOrCompute(ctx, e.results, key, e.cfg.SuggestionCacheTTL, func() ([]string, error) {
		return e.suggest(ctx, p, limit)
	})
	e.cacheEvent(ctx, suggestionsIndex, p, hit)
	if err != nil {
		logger.FromContext(ctx).Error("suggestions failed", "prefix", p, "error", err)
		return []string{}, nil
	}
	return titles, nil
}

func (e *Engine) suggest(ctx context.Context, prefix string, limit int) (titles []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("suggesting %q: %v", prefix, r)
		}
	}()

	snap, err := e.index.GetIndex(ctx, indexer.Posts)
	if err != nil {
		return nil, fmt.Errorf("loading posts index: %w", err)
	}
	needle := tokenizer.Normalize(prefix)
	now := e.now()

	byID := make(map[int64]string)
	var scored []ranker.ScoredDoc
	considered := 0
	for _, p := range snap.Posts {
		if p.PublishedAt.After(now) {
			continue
		}
		if considered == e.cfg.MaxCandidates {
			break
		}
		considered++

		score := scorer.ScoreExact
		if !strings.Contains(tokenizer.Normalize(p.Title), needle) {
			var codes []string
			if p.Phonetic != nil {
				codes = p.Phonetic.Title
			}
			score = e.scorer.ScoreWithCodes(prefix, p.Title, codes)
		}
		if e.scorer.Matches(score) {
			scored = append(scored, ranker.ScoredDoc{ID: p.ID, Score: score})
			byID[p.ID] = p.Title
		}
	}

	seen := make(map[string]struct{})
	titles = make([]string, 0, limit)
	for _, d := range ranker.Rank(scored, 0) {
		title := byID[d.ID]
		norm := tokenizer.Normalize(title)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		titles = append(titles, title)
		if len(titles) == limit {
			break
		}
	}
	return titles, nil
}
