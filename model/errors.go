package model

import "errors"

// Sentinel error kinds. Operations wrap these with context via
// fmt.Errorf("...: %w", ...); callers test with errors.Is.
var (
	// ErrNotFound marks a missing mission, task, or agent reference.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict marks a transition attempted from a disallowed
	// status. The operation is rejected with no mutation.
	ErrStateConflict = errors.New("state conflict")

	// ErrValidation marks a request missing a required field. Rejected
	// before any mutation.
	ErrValidation = errors.New("validation failed")
)
