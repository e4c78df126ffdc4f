package backend

import (
	"errors"
	"fmt"
)

// Error is a non-success answer from the backend. Detail carries the backend's
// own message when it sent one.
type Error struct {
	StatusCode int
	Detail     string
	fallback   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.fallback != "" {
		return e.fallback
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// IsBackendError reports whether err came from a backend response rather
// than from the transport.
func IsBackendError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
