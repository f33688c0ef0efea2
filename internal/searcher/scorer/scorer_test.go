package scorer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/newsblog-search/pkg/config"
)

func defaultScorer() Scorer {
	return New(config.DefaultSearch())
}

func TestScore_Rules(t *testing.T) {
	s := defaultScorer()
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"exact", "Kubernetes", "kubernetes", 100},
		{"exact after trim", "  go  ", "GO", 100},
		{"exact across canonical forms", "CAFE\u0301", "caf\u00e9", 100},
		{"substring", "kube", "Understanding Kubernetes", 95},
		{"distance one", "kubernetis", "kubernetes", 80},
		{"distance two", "kubarnetus", "kubernetes", 60},
		{"transposed word", "Kubrenetes", "Understanding Kubernetes Fundamentals", 75},
		{"word distance two", "fundamantels", "Understanding Kubernetes Fundamentals", 50},
		{"short words ignored", "xy", "ab cd", 0},
		{"no similarity", "zzzzzz", "Baking Bread", 0},
		{"empty text", "go", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Score(tt.query, tt.text))
		})
	}
}

func TestScore_KubernetesScenario(t *testing.T) {
	s := defaultScorer()
	score := s.Score("Kubrenetes", "Understanding Kubernetes Fundamentals")
	assert.GreaterOrEqual(t, score, 60.0)
	assert.Less(t, score, 100.0)
	assert.Equal(t, MatchFuzzy, s.Classify("Kubrenetes", "Understanding Kubernetes Fundamentals"))
}

func TestScore_HundredOnlyForExactMatch(t *testing.T) {
	s := defaultScorer()
	s.PhoneticEnabled = true
	s.PhoneticWeight = 1
	s.MatchThreshold = 100

	texts := []string{
		"kubernetes",
		"Kubernetes Fundamentals",
		"kubernetes kubernetes",
		"Smyth",
		"kubernete",
		"",
	}
	queries := []string{"kubernetes", "Smith", "KUBERNETES ", "kubernetes fundamentals basics"}
	for _, q := range queries {
		for _, text := range texts {
			exact := strings.ToLower(strings.TrimSpace(q)) == strings.ToLower(strings.TrimSpace(text))
			score := s.Score(q, text)
			assert.Equal(t, exact, score == 100, "Score(%q, %q) = %v", q, text, score)
		}
	}
}

func TestScore_SubstringIsNinetyFive(t *testing.T) {
	s := defaultScorer()
	texts := []string{"The Go Programming Language", "golang", "ago", "GOPHER"}
	for _, text := range texts {
		assert.Equal(t, 95.0, s.Score("go", text), text)
	}
}

func TestScore_MonotonicInDistance(t *testing.T) {
	s := defaultScorer()
	s.DistanceThreshold = 5
	base := "abcdefghij"
	prev := s.Score(base, base)
	for d := 1; d <= 6; d++ {
		mutated := []rune(base)
		for i := 0; i < d; i++ {
			mutated[i] = 'z'
		}
		score := s.Score(base, string(mutated))
		assert.LessOrEqual(t, score, prev, "distance %d", d)
		prev = score
	}
}

func TestScore_Phonetic(t *testing.T) {
	s := defaultScorer()
	s.PhoneticEnabled = true

	// "fonetik" and "phonetic" share no substring and are three edits apart
	plain := defaultScorer().Score("fonetik", "phonetic")
	withPhonetic := s.Score("fonetik", "phonetic")
	assert.Greater(t, withPhonetic, plain)
	assert.Equal(t, 100*s.PhoneticWeight, withPhonetic)

	assert.Equal(t, 100.0, s.PhoneticScore("Stephen", "Steven"))
	assert.Equal(t, 0.0, s.PhoneticScore("go", "is"), "words under three runes have no codes")
}

func TestScore_PrecomputedCodesMatch(t *testing.T) {
	s := defaultScorer()
	s.PhoneticEnabled = true
	text := "Phonetic Algorithms"
	assert.Equal(t, s.Score("fonetik", text), s.ScoreWithCodes("fonetik", text, []string{"FNTK", "ALKR0MS"}))
}

func TestClassify(t *testing.T) {
	s := defaultScorer()
	phonetic := s
	phonetic.PhoneticEnabled = true

	assert.Equal(t, MatchExact, s.Classify("Go", "go"))
	assert.Equal(t, MatchSubstring, s.Classify("go", "golang"))
	assert.Equal(t, MatchFuzzy, s.Classify("kubernetis", "kubernetes"))
	assert.Equal(t, MatchNone, s.Classify("zzzz", "kubernetes"))
	assert.Equal(t, MatchPhonetic, phonetic.Classify("Smyth", "Smith"))
	assert.Equal(t, MatchSubstring, phonetic.Classify("smith", "Smithsonian"))
}

func TestOSADistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"kubrenetes", "kubernetes", 1},
		{"ca", "ac", 1},
		{"über", "ubre", 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.a, tt.b), func(t *testing.T) {
			require.Equal(t, tt.want, osaDistance([]rune(tt.a), []rune(tt.b)))
			require.Equal(t, tt.want, osaDistance([]rune(tt.b), []rune(tt.a)))
		})
	}
}

func BenchmarkScore_Substring(b *testing.B) {
	s := defaultScorer()
	for i := 0; i < b.N; i++ {
		s.Score("kubernetes", "Understanding Kubernetes Fundamentals")
	}
}

func BenchmarkScore_WordFallback(b *testing.B) {
	s := defaultScorer()
	text := "A practical guide to container orchestration with Kubernetes and Helm"
	for i := 0; i < b.N; i++ {
		s.Score("Kubrenetes", text)
	}
}

func BenchmarkScore_Phonetic(b *testing.B) {
	s := defaultScorer()
	s.PhoneticEnabled = true
	text := "A practical guide to container orchestration with Kubernetes and Helm"
	for i := 0; i < b.N; i++ {
		s.Score("orkestrashun", text)
	}
}
