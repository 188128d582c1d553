package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates a state transition conflict.
	ErrConflict = errors.New("conflict")
)

// ValidationErrors aggregates every upload validation failure so the caller
// can report all of them at once.
type ValidationErrors struct {
	Errors []string
}

func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	return strings.Join(e.Errors, ", ")
}

func (e *ValidationErrors) Unwrap() error {
	return ErrValidation
}
