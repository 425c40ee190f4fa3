package core

import (
	"errors"
	"fmt"
)

// Upstream error taxonomy. The catalog client normalizes every failure into
// one of these so callers can branch on the class without knowing the wire
// details.

var (
	// ErrUnauthorized is a 401 from any upstream call. Fatal to the session.
	ErrUnauthorized = errors.New("upstream session unauthorized")
	// ErrRateLimited is a 429 that was not resolved by the short retry path.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrTimeout is a request that exceeded the per-call deadline.
	ErrTimeout = errors.New("upstream request timed out")
)

// UpstreamError carries the HTTP status and body of a generic upstream
// failure so the UI can display it verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error: status %d", e.Status)
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err is, or wraps, a session-expiring 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited reports whether err is, or wraps, an unresolved 429.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTimeout reports whether err is, or wraps, a per-call deadline failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
