package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrManifest aborts a run before any resource is loaded.
	ErrManifest = errors.New("manifest load failed")

	// ErrTimeout marks an attempt that did not finish before its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrResourceOperation marks an error surfaced by the load operation itself.
	ErrResourceOperation = errors.New("resource load failed")

	// ErrResourceFinalFailure marks a resource that exhausted its retries.
	ErrResourceFinalFailure = errors.New("resource failed after retries")

	// ErrInitialization is returned when the initialization step fails.
	ErrInitialization = errors.New("initialization failed")

	// ErrUnexpected wraps anything that escaped to the run boundary, panics included.
	ErrUnexpected = errors.New("unexpected error")
)

// LoadError describes a failed resource attempt or a final per-resource failure.
// It matches both its Kind sentinel and the underlying cause with errors.Is.
type LoadError struct {
	ResourceID ResourceID
	Attempt    int // 1-based
	Kind       error
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: resource %q attempt %d: %v", e.Kind, e.ResourceID, e.Attempt, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// AttemptResultOf classifies an attempt error.
func AttemptResultOf(err error) AttemptResult {
	switch {
	case err == nil:
		return AttemptSuccess
	case errors.Is(err, ErrTimeout):
		return AttemptTimeout
	default:
		return AttemptError
	}
}
