package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed event payload. Validation failures are
// rejected and logged, never stored; they are also never propagated back to
// the pipeline being observed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid event: " + e.Reason
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrWatchSourceUnavailable marks the progress log being missing, truncated,
// or rotated. The watcher logs it and retries on its next pass; it never
// terminates the watch loop.
var ErrWatchSourceUnavailable = errors.New("watch source unavailable")
