// Package indexer maintains the cache-resident search index: one snapshot
// of searchable fields per entity type, rebuilt from the content store on a
// cache miss and patched in place on single-entity mutations.
package indexer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goleaf/newsblog-search/internal/content"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

// Type names an index. Each type has exactly one snapshot.
type Type string

const (
	Posts      Type = content.KindPost
	Tags       Type = content.KindTag
	Categories Type = content.KindCategory
)

// KeyPrefix prefixes every snapshot cache key.
const KeyPrefix = "search:index:"

// AllTypes lists every index type in build order.
var AllTypes = []Type{Posts, Tags, Categories}

// ParseType validates s as an index type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errInvalidType(Type(s))
	}
	return t, nil
}

func (t Type) Valid() bool {
	switch t {
	case Posts, Tags, Categories:
		return true
	}
	return false
}

// CacheKey is the key the type's snapshot is stored under.
func (t Type) CacheKey() string {
	return KeyPrefix + string(t)
}

// IndexBuildError reports a failed build or rebuild. errors.Is matches both
// apperrors.ErrIndexBuild and the underlying cause.
type IndexBuildError struct {
	Type Type
	Err  error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("building %q index: %v", string(e.Type), e.Err)
}

func (e *IndexBuildError) Unwrap() []error {
	return []error{apperrors.ErrIndexBuild, e.Err}
}

// IsIndexBuildError reports whether err is, or wraps, an IndexBuildError.
func IsIndexBuildError(err error) bool {
	var target *IndexBuildError
	return errors.As(err, &target)
}
