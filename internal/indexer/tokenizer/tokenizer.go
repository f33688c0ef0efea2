// Package tokenizer normalises text for fuzzy matching: case and Unicode
// normalisation, word splitting, markup stripping and phonetic encoding.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// MinWordLength is the shortest word that takes part in word-level and
// phonetic matching.
const MinWordLength = 3

// Normalize trims s, composes it to NFC and lower-cases it. Two strings are
// an exact match when their normalised forms are equal.
func Normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// IsWordRune reports whether r is part of a word.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// Words splits s into normalised words of at least minLen runes.
func Words(s string, minLen int) []string {
	fields := strings.FieldsFunc(Normalize(s), func(r rune) bool { return !IsWordRune(r) })
	words := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minLen {
			words = append(words, f)
		}
	}
	return words
}

// StripMarkup returns the text content of an HTML fragment with entities
// decoded and runs of whitespace collapsed to a single space. Script and
// style bodies are dropped.
func StripMarkup(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

// PhoneticCodes returns the Metaphone code of every word in text long
// enough to take part in matching, in order of appearance.
func PhoneticCodes(text string) []string {
	words := Words(text, MinWordLength)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		if code := Metaphone(w); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
