package domain

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Handler errors bubble to the worker runtime, which
// applies the job's attempts/backoff policy; exhaustion routes the job to the
// dead letter store.
var (
	// ErrTransient marks network, timeout and rate-limit failures that are
	// expected to resolve on retry.
	ErrTransient = errors.New("transient infrastructure error")

	// ErrRecordingNotFound indicates the session recording backing an
	// evaluation is missing. Unlike sub-scorer failures, which degrade
	// locally, this fails the whole evaluation job and rides the normal
	// retry/backoff/dead-letter path.
	ErrRecordingNotFound = errors.New("session recording not found")
)

// ValidationError reports a malformed job payload. It currently consumes
// retry budget like any other error; a non-retryable fast path is a known
// improvable area.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsTransient reports whether the error is classified as a transient
// infrastructure failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
