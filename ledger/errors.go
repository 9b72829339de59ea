/*
errors.go - Error types for the ledger engine

ERROR CATEGORIES:
  1. Storage errors - backend unreachable or write rejected (abort)
  2. Validation errors - bad quantity, missing reference (abort)
  3. Not-found errors - abort for primary operations, recovered for
     warehouse side effects (see coordinator.go)
  4. Concurrency errors - CAS retries exhausted, lock not obtained

USAGE:
    if errors.Is(err, ledger.ErrNotFound) { ... }

    var verr *ledger.ValidationError
    if errors.As(err, &verr) { ... verr.Field ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")

	// ErrDuplicateID is returned by inserts when the id is already taken.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrConcurrentModification is returned when the stock CAS loop gives up.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidTransition is returned when a delivery cannot move forward.
	ErrInvalidTransition = errors.New("invalid delivery transition")

	// ErrProjectCompleted is returned when an open allocation would be added
	// to a COMPLETED project.
	ErrProjectCompleted = errors.New("project is completed")

	// ErrLockNotObtained is returned when a per-entity lock times out.
	ErrLockNotObtained = errors.New("lock not obtained")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "material", "transaction", "project", "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a backend failure. It matches both ErrStorage and
// the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// WrapStorage turns a backend error into a StorageError, leaving ledger
// errors (not found, duplicate, concurrency) untouched.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrProjectCompleted) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrProjectCompleted) ||
		errors.Is(err, ErrDuplicateID)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrLockNotObtained)
}
