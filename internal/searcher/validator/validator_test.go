package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		want   string
		reason string
	}{
		{"trims", "  kubernetes  ", "kubernetes", ""},
		{"hyphen and underscore", "real-time snake_case", "real-time snake_case", ""},
		{"unicode letters", "Über Köln 東京", "Über Köln 東京", ""},
		{"digits", "go 122", "go 122", ""},
		{"punctuation", "go 1.22", "", ReasonCharacters},
		{"empty", "", "", ReasonEmpty},
		{"whitespace only", " \t\n ", "", ReasonEmpty},
		{"sql injection", `"; DROP TABLE posts`, "", ReasonCharacters},
		{"markup", "<script>", "", ReasonCharacters},
		{"too long", strings.Repeat("a", 250), "", ReasonTooLong},
		{"exactly max", strings.Repeat("a", 200), strings.Repeat("a", 200), ""},
		{"max counts runes", strings.Repeat("ü", 200), strings.Repeat("ü", 200), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.query, 200)
			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			var invalid *InvalidQueryError
			require.True(t, errors.As(err, &invalid))
			assert.Contains(t, invalid.Reason, tt.reason)
			assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
		})
	}
}

func TestValidate_ComposesCombiningMarks(t *testing.T) {
	got, err := Validate("cafe\u0301", 200)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}
