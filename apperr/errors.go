// Package apperr holds the error taxonomy shared by the pricing, ledger and
// reconciliation code. It has no dependencies so every package can import it.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError is malformed or out-of-range input. No state was mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConversionError means the unit graph has no path between two units, or a unit
// is unknown. It indicates missing reference data rather than a user typo.
type ConversionError struct {
	From string
	To   string
	// Unknown is set when one of the unit codes is not registered at all.
	Unknown string
}

func (e *ConversionError) Error() string {
	if e.Unknown != "" {
		return fmt.Sprintf("unit not found: %s", e.Unknown)
	}
	return fmt.Sprintf("unable to convert from %s to %s", e.From, e.To)
}

// InsufficientInventoryError is returned when a reduction exceeds on-hand quantity.
type InsufficientInventoryError struct {
	ItemId    int
	Requested string
	Available string
}

func (e *InsufficientInventoryError) Error() string {
	return "insufficient inventory to reduce by requested amount"
}

// InvalidStateError is an operation against an object whose state forbids it.
type InvalidStateError struct {
	Entity string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %q", e.Op, e.Entity, e.State)
}

// ExternalServiceError wraps a failed or timed-out payment provider call.
// Local state has already been rolled back when it propagates.
type ExternalServiceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ConflictError is an idempotent duplicate detected at the storage layer.
// Callers treat it as success.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate: %s", e.Key)
}

// IsValidation reports whether err should surface as a 4xx-style input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ce *ConversionError
	var ie *InsufficientInventoryError
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ie)
}

func IsConversion(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}

func IsInsufficientInventory(err error) bool {
	var ie *InsufficientInventoryError
	return errors.As(err, &ie)
}

func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsRetryable is true only for external failures; everything else is
// deterministic for the same input.
func IsRetryable(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee) && ee.Retryable
}
