// Package scorer computes fuzzy relevance scores in [0, 100].
//
// Rules are tried in order and the first that applies wins:
//
//  1. exact equality after tokenizer.Normalize: 100
//  2. the text contains the query: 95
//  3. whole-string edit distance within DistanceThreshold: 100 - 20*d
//  4. best word pair (words of 3+ runes): 100 - 25*d, at most 90
//  5. when phonetic matching is on and the score is still below
//     MatchThreshold, the weighted phonetic score if it is higher
//
// Word distance counts an adjacent transposition as one edit. Word and
// phonetic scores are capped below the substring score so that only rule 1
// can produce 100.
//
// Query and text are compared in NFC form, so canonically equivalent
// spellings ("e" plus a combining accent against the precomposed letter)
// are equal for every rule even though their bytes differ.
package scorer

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/goleaf/newsblog-search/internal/indexer/tokenizer"
	"github.com/goleaf/newsblog-search/pkg/config"
)

type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchSubstring MatchType = "substring"
	MatchFuzzy     MatchType = "fuzzy"
	MatchPhonetic  MatchType = "phonetic"
	MatchFallback  MatchType = "fallback"
	MatchNone      MatchType = "none"
)

const (
	ScoreExact     = 100.0
	ScoreSubstring = 95.0
	maxWordScore   = 90.0

	distancePenalty = 20.0
	wordPenalty     = 25.0
	phoneticPenalty = 30.0

	// a phonetic score at or above this counts as a near match when
	// labelling results.
	nearPhonetic = 100 - phoneticPenalty
)

type Scorer struct {
	MatchThreshold    float64
	DistanceThreshold int
	PhoneticEnabled   bool
	PhoneticWeight    float64
}

// New builds a Scorer from the search configuration.
func New(sc config.SearchConfig) Scorer {
	return Scorer{
		MatchThreshold:    sc.FuzzyThreshold,
		DistanceThreshold: sc.DistanceThreshold,
		PhoneticEnabled:   sc.PhoneticEnabled,
		PhoneticWeight:    sc.PhoneticWeight,
	}
}

// Matches reports whether score reaches the match threshold.
func (s Scorer) Matches(score float64) bool {
	return score >= s.MatchThreshold
}

// Score rates how well text matches query.
func (s Scorer) Score(query, text string) float64 {
	return s.ScoreWithCodes(query, text, nil)
}

// ScoreWithCodes is Score with the text's phonetic codes precomputed. A nil
// codes slice means the codes are derived from text when needed.
func (s Scorer) ScoreWithCodes(query, text string, codes []string) float64 {
	q := tokenizer.Normalize(query)
	t := tokenizer.Normalize(text)

	if q == t {
		return ScoreExact
	}
	if q == "" || t == "" {
		return 0
	}
	if strings.Contains(t, q) {
		return ScoreSubstring
	}

	score := s.distanceScore(q, t)
	if score < 0 {
		score = wordScore(q, t)
	}

	if s.PhoneticEnabled && score < s.MatchThreshold {
		if codes == nil {
			codes = tokenizer.PhoneticCodes(t)
		}
		p := min(phoneticScore(tokenizer.PhoneticCodes(q), codes)*s.PhoneticWeight, maxWordScore)
		score = max(score, p)
	}
	return score
}

// PhoneticScore compares the Metaphone codes of the words in query and
// text: 100 for a shared code, otherwise 100 - 30 per edit between the
// closest pair of codes.
func (s Scorer) PhoneticScore(query, text string) float64 {
	return phoneticScore(tokenizer.PhoneticCodes(query), tokenizer.PhoneticCodes(text))
}

// Classify labels how text matched query.
func (s Scorer) Classify(query, text string) MatchType {
	return s.ClassifyWithCodes(query, text, nil)
}

// ClassifyWithCodes is Classify with precomputed text codes.
func (s Scorer) ClassifyWithCodes(query, text string, codes []string) MatchType {
	q := tokenizer.Normalize(query)
	t := tokenizer.Normalize(text)
	switch {
	case q == t:
		return MatchExact
	case q == "" || t == "":
		return MatchNone
	case strings.Contains(t, q):
		return MatchSubstring
	}
	if s.PhoneticEnabled {
		if codes == nil {
			codes = tokenizer.PhoneticCodes(t)
		}
		if phoneticScore(tokenizer.PhoneticCodes(q), codes) >= nearPhonetic {
			return MatchPhonetic
		}
	}
	if s.Matches(s.ScoreWithCodes(query, text, codes)) {
		return MatchFuzzy
	}
	return MatchNone
}

// distanceScore applies rule 3 and returns -1 when it does not apply.
func (s Scorer) distanceScore(q, t string) float64 {
	ql, tl := len([]rune(q)), len([]rune(t))
	if abs(ql-tl) > s.DistanceThreshold {
		// the distance is at least the length difference
		return -1
	}
	d := levenshtein.ComputeDistance(q, t)
	if d > s.DistanceThreshold {
		return -1
	}
	return max(0, 100-float64(d)*distancePenalty)
}

func wordScore(q, t string) float64 {
	qWords := tokenizer.Words(q, tokenizer.MinWordLength)
	tWords := tokenizer.Words(t, tokenizer.MinWordLength)
	best := 0.0
	for _, qw := range qWords {
		qr := []rune(qw)
		for _, tw := range tWords {
			tr := []rune(tw)
			// a pair cannot score above zero once the length gap alone
			// costs four edits
			if abs(len(qr)-len(tr)) >= 4 {
				continue
			}
			score := max(0, 100-float64(osaDistance(qr, tr))*wordPenalty)
			if score > best {
				best = score
				if best >= maxWordScore {
					return maxWordScore
				}
			}
		}
	}
	return best
}

func phoneticScore(qCodes, tCodes []string) float64 {
	best := 0.0
	for _, qc := range qCodes {
		for _, tc := range tCodes {
			if qc == tc {
				return 100
			}
			score := max(0, 100-float64(levenshtein.ComputeDistance(qc, tc))*phoneticPenalty)
			best = max(best, score)
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
