// Package highlight renders matched text for display. Output is always
// HTML-escaped; the highlight tags are the only markup it emits.
package highlight

import (
	"html"
	"slices"
	"strings"
	"unicode"

	"github.com/goleaf/newsblog-search/internal/indexer/tokenizer"
	"github.com/goleaf/newsblog-search/pkg/config"
)

// Ellipsis marks a side of an extracted context that was cut off.
const Ellipsis = "..."

type Highlighter struct {
	Tag           string
	Class         string
	ContextLength int
}

// New builds a Highlighter from the search configuration.
func New(sc config.SearchConfig) Highlighter {
	return Highlighter{
		Tag:           sc.HighlightTag,
		Class:         sc.HighlightClass,
		ContextLength: sc.ContextLength,
	}
}

type span struct{ start, end int }

// Highlight escapes text and wraps every whole-word, case-insensitive
// occurrence of each whitespace-separated query word in the highlight tag.
// Matching runs on the raw text and escaping is applied to every segment,
// so the source text can never contribute markup.
func (h Highlighter) Highlight(text, query string) string {
	runes := []rune(text)
	return h.render(runes, findWords(runes, query))
}

// ExtractContext returns an escaped, highlighted window of text around the
// first occurrence of query. When the whole query does not occur, the
// window centres on the first query word that does; when none does, it is
// a prefix of text. Window edges are moved inward to whitespace so words
// are not cut, and each truncated side gets an ellipsis.
func (h Highlighter) ExtractContext(text, query string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	radius := h.ContextLength
	if radius <= 0 {
		radius = 200
	}

	start, end := 0, min(len(runes), 2*radius)
	keepFrom, keepTo := 0, 0
	if pos, n, ok := locate(runes, query); ok {
		start = max(0, pos-radius)
		end = min(len(runes), pos+n+radius)
		keepFrom, keepTo = pos, pos+n
	}
	start, end = snap(runes, start, end, keepFrom, keepTo)

	window := runes[start:end]
	var b strings.Builder
	if start > 0 {
		b.WriteString(Ellipsis)
	}
	b.WriteString(h.render(window, findWords(window, query)))
	if end < len(runes) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

func (h Highlighter) render(runes []rune, spans []span) string {
	tag := h.Tag
	if tag == "" {
		tag = "mark"
	}
	open := "<" + tag
	if h.Class != "" {
		open += ` class="` + html.EscapeString(h.Class) + `"`
	}
	open += ">"
	closing := "</" + tag + ">"

	var b strings.Builder
	b.Grow(len(runes) + len(spans)*(len(open)+len(closing)))
	prev := 0
	for _, s := range spans {
		b.WriteString(html.EscapeString(string(runes[prev:s.start])))
		b.WriteString(open)
		b.WriteString(html.EscapeString(string(runes[s.start:s.end])))
		b.WriteString(closing)
		prev = s.end
	}
	b.WriteString(html.EscapeString(string(runes[prev:])))
	return b.String()
}

// findWords returns the sorted, merged spans of whole-word matches of each
// query word in runes.
func findWords(runes []rune, query string) []span {
	lower := lowerRunes(runes)
	var spans []span
	for _, w := range strings.Fields(query) {
		word := lowerRunes([]rune(w))
		for i := 0; i+len(word) <= len(lower); i++ {
			if !slices.Equal(lower[i:i+len(word)], word) {
				continue
			}
			before := i == 0 || !tokenizer.IsWordRune(runes[i-1])
			after := i+len(word) == len(runes) || !tokenizer.IsWordRune(runes[i+len(word)])
			if before && after {
				spans = append(spans, span{i, i + len(word)})
			}
		}
	}
	return merge(spans)
}

func merge(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		out = append(out, s)
	}
	return out
}

// locate finds the first case-insensitive occurrence of the whole query,
// then of each query word in order.
func locate(runes []rune, query string) (pos, n int, ok bool) {
	lower := lowerRunes(runes)
	candidates := append([]string{strings.TrimSpace(query)}, strings.Fields(query)...)
	for _, c := range candidates {
		needle := lowerRunes([]rune(c))
		if len(needle) == 0 {
			continue
		}
		if i := indexRunes(lower, needle); i >= 0 {
			return i, len(needle), true
		}
	}
	return 0, 0, false
}

// snap moves start forward and end backward to the nearest whitespace so
// the window does not begin or end mid-word. The span [keepFrom, keepTo)
// always stays inside the window, and an edge with no whitespace to snap
// to stays where it is.
func snap(runes []rune, start, end, keepFrom, keepTo int) (int, int) {
	if start > 0 && !unicode.IsSpace(runes[start-1]) {
		for i := start; i < keepFrom; i++ {
			if unicode.IsSpace(runes[i]) {
				start = i + 1
				break
			}
		}
	}
	if end < len(runes) && !unicode.IsSpace(runes[end]) {
		for i := end - 1; i >= keepTo && i > start; i-- {
			if unicode.IsSpace(runes[i]) {
				end = i
				break
			}
		}
	}
	if start > 0 {
		for start < keepFrom && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	if end < len(runes) {
		for end > keepTo && end > start && unicode.IsSpace(runes[end-1]) {
			end--
		}
	}
	return start, end
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
