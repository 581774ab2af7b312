package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrCommitted signals an operation against a draft that has already been committed.
	ErrCommitted = errors.New("already_committed")
	// ErrEmptyTransaction signals a commit attempt with no legs.
	ErrEmptyTransaction = errors.New("empty_transaction")
)

// ValidationError reports malformed input with the offending field.
// The draft or account the input targeted is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Validation builds a *ValidationError. It satisfies errors.Is(err, ErrInvalid).
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ImbalanceError reports the first currency whose legs do not sum to zero
// at commit time. Total carries the exact non-zero sum.
type ImbalanceError struct {
	Currency string
	Total    decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("legs for currency %s sum to %s, must be 0", e.Currency, e.Total)
}

// CycleError reports an account move that would make an account its own
// ancestor.
type CycleError struct {
	AccountID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving account %s under its own subtree would create a cycle", e.AccountID)
}

// StorageError wraps a transient storage-layer fault. A commit that fails
// with a StorageError left no durable trace and is safe for the caller to
// retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a *StorageError unless it is nil or a sentinel that
// should pass through untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalid) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
