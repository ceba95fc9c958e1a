package ns

import (
	"errors"
	"fmt"
)

// Error kinds returned by the domain layer. Callers match them with errors.Is.
var (
	ErrAuthInvalid        = errors.New("credential signature invalid")
	ErrAuthUserUnknown    = errors.New("user not found")
	ErrValidationRejected = errors.New("content rejected")
	ErrNamingConflict     = errors.New("name already taken by different content")
	ErrStorageIO          = errors.New("storage i/o failure")
	ErrNotFound           = errors.New("file not found")
	ErrForbidden          = errors.New("file not owned by caller")
)

// ValidationError describes why an upload was not admitted.
type ValidationError struct {
	Reason   string
	TooLarge bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationRejected, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationRejected }

func rejectf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// OpError records the storage operation and file that failed.
// It matches both ErrStorageIO and the underlying cause.
type OpError struct {
	Op       string
	Category Category
	Filename string
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Category, e.Filename, e.Err)
}

func (e *OpError) Unwrap() []error { return []error{ErrStorageIO, e.Err} }
