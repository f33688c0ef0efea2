package searcher

import (
	"fmt"
	"time"

	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
)

// Status is how a matching pass ended.
type Status int

const (
	StatusOK Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timeout"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the result of a matching pass. Results is only meaningful for
// StatusOK; otherwise Err says what went wrong and the caller decides
// whether to fall back.
type Outcome struct {
	Status  Status
	Results []Result
	Err     error
}

func ok(results []Result) Outcome {
	return Outcome{Status: StatusOK, Results: results}
}

func failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// SearchTimeoutError reports a matching pass that ran past the duration
// ceiling.
type SearchTimeoutError struct {
	Query   string
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *SearchTimeoutError) Error() string {
	return fmt.Sprintf("search %q took %s, limit %s", e.Query, e.Elapsed, e.Limit)
}

func (e *SearchTimeoutError) Unwrap() error {
	return apperrors.ErrSearchTimeout
}
