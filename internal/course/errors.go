package course

import "errors"

var (
	// ErrNotFound covers missing records and records owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a learner tries to skip ahead.
	ErrForbidden = errors.New("module locked")
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)
