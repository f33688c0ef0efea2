// Package validator rejects malformed search queries before they reach the
// cache, the index or the content store.
package validator

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

// Rejection reasons.
const (
	ReasonEmpty      = "query is empty"
	ReasonTooLong    = "query is too long"
	ReasonCharacters = "query contains disallowed characters"
)

// InvalidQueryError describes why a query was rejected. It is never
// retried or answered by a fallback; the caller must fix the query.
type InvalidQueryError struct {
	Query  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

func (e *InvalidQueryError) Unwrap() error {
	return apperrors.ErrInvalidQuery
}

// Validate trims query and checks that it is non-empty, at most maxLen
// runes long and made only of letters, digits, whitespace, '-' and '_'.
// It returns the trimmed, NFC-composed query.
func Validate(query string, maxLen int) (string, error) {
	q := norm.NFC.String(strings.TrimSpace(query))
	if q == "" {
		return "", &InvalidQueryError{Query: query, Reason: ReasonEmpty}
	}
	if maxLen > 0 && utf8.RuneCountInString(q) > maxLen {
		return "", &InvalidQueryError{Query: query, Reason: fmt.Sprintf("%s (max %d characters)", ReasonTooLong, maxLen)}
	}
	for _, r := range q {
		if !allowed(r) {
			return "", &InvalidQueryError{Query: query, Reason: fmt.Sprintf("%s: %q", ReasonCharacters, r)}
		}
	}
	return q, nil
}

func allowed(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
		unicode.IsMark(r) || r == '-' || r == '_'
}
