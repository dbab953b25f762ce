package search

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by NotFoundError and returned by Client.GetDocument
// for missing documents.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed saved search filter expression.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid search source: %s: %v", e.Reason, e.Err)
	}
	return "invalid search source: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing saved search or index pattern.
type NotFoundError struct {
	Kind string // "search", "index-pattern"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// EmptyResultError is returned when the count query matches nothing.
type EmptyResultError struct{}

func (EmptyResultError) Error() string { return "No Content." }

// OversizeError is returned when the count exceeds the configured row limit.
type OversizeError struct {
	Count int64
	Max   int64
}

func (e *OversizeError) Error() string { return "Data too large." }

// FetchError wraps a failed count, search or scroll call.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
