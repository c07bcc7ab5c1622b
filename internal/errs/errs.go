// Package errs defines the error taxonomy shared by the pipeline.
//
// Validation and authorization failures are detected before any external
// call. Ledger failures are classified at each call site: heartbeats swallow
// them, status updates and reward distribution surface them. Store failures
// are always fatal to the current operation.
package errs

import (
	"errors"
	"fmt"
)

// ErrNotFoundOrUnauthorized is returned when a resource is absent or the
// caller does not own it. The two cases are deliberately indistinguishable so
// the existence of another user's resource is not leaked.
var ErrNotFoundOrUnauthorized = errors.New("not found or unauthorized")

// ValidationError reports malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// LedgerError wraps a failed or timed-out ledger call.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Ledger wraps err as a LedgerError for the given operation.
func Ledger(op string, err error) error {
	return &LedgerError{Op: op, Err: err}
}

// IsLedger reports whether err originated from the ledger collaborator.
func IsLedger(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// StoreError wraps a durable store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError for the given operation.
func Store(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
