package searcher

import (
	"cmp"
	"context"
	"slices"

	"github.com/goleaf/newsblog-search/internal/indexer"
)

// postFields are the post fields multi-field search can match against.
var postFields = []string{
	indexer.FieldTitle,
	indexer.FieldExcerpt,
	indexer.FieldContent,
	indexer.FieldTags,
	indexer.FieldCategory,
	indexer.FieldAuthor,
	indexer.FieldSlug,
}

// MultiFieldSearch scores query against each of fields, weights every
// field score by the configured field weight and normalises the sum
// against the best score the entry's non-empty fields could reach. Unknown
// field names are ignored; no usable field means the weighted defaults.
// Results always carry a highlight per searched field.
func (e *Engine) MultiFieldSearch(ctx context.Context, query string, fields []string, opts Options) ([]Result, error) {
	opts = e.normalize(opts, indexer.Posts)
	opts.Fields = e.resolveFields(fields)
	return e.run(ctx, "posts:multi", query, opts, e.matchMultiField, e.FallbackSearch)
}

func (e *Engine) matchMultiField(ctx context.Context, query string, opts Options) Outcome {
	return e.matchPosts(ctx, query, opts, e.scoreFields, func(q string, opts Options, entry indexer.PostEntry) map[string]string {
		h := make(map[string]string, len(opts.Fields))
		for _, f := range opts.Fields {
			text := entry.Field(f)
			if text == "" {
				continue
			}
			if f == indexer.FieldTitle {
				h[f] = e.highlighter.Highlight(text, q)
			} else {
				h[f] = e.highlighter.ExtractContext(text, q)
			}
		}
		return h
	})
}

func (e *Engine) scoreFields(query string, opts Options, p indexer.PostEntry) (float64, string, []string) {
	var weighted, achievable, best float64
	var bestField string
	var bestCodes []string
	for _, f := range opts.Fields {
		text := p.Field(f)
		if text == "" {
			continue
		}
		codes := fieldCodes(p, f)
		w := e.weight(f)
		s := e.scorer.ScoreWithCodes(query, text, codes) * w
		weighted += s
		achievable += 100 * w
		if s > best || bestField == "" {
			best, bestField, bestCodes = s, f, codes
		}
	}
	if achievable == 0 {
		return 0, indexer.FieldTitle, nil
	}
	return weighted / achievable * 100, bestField, bestCodes
}

func fieldCodes(p indexer.PostEntry, field string) []string {
	if p.Phonetic == nil {
		return nil
	}
	switch field {
	case indexer.FieldTitle:
		return p.Phonetic.Title
	case indexer.FieldExcerpt:
		return p.Phonetic.Excerpt
	}
	return nil
}

func (e *Engine) weight(field string) float64 {
	if w, ok := e.cfg.FieldWeights[field]; ok && w > 0 {
		return w
	}
	return 1
}

// resolveFields keeps the known fields of requested in order, without
// duplicates. Nothing usable yields every weighted field, heaviest first.
func (e *Engine) resolveFields(requested []string) []string {
	var out []string
	for _, f := range requested {
		if slices.Contains(postFields, f) && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) > 0 {
		return out
	}
	for f := range e.cfg.FieldWeights {
		if slices.Contains(postFields, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []string{indexer.FieldTitle, indexer.FieldExcerpt, indexer.FieldContent}
	}
	slices.SortFunc(out, func(a, b string) int {
		if c := cmp.Compare(e.weight(b), e.weight(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return out
}
