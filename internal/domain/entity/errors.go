package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvoiceNotFound is returned when the target invoice does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrTypeCoercion is returned when a field value cannot be converted to its column type
	ErrTypeCoercion = errors.New("type coercion failed")

	// ErrReferentialIntegrity is returned when a line references a missing product, batch or delivery line
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrConstraintViolation is returned when a check or the stock ledger rejects the change
	ErrConstraintViolation = errors.New("constraint violation")

	ErrInsufficientStock   = fmt.Errorf("insufficient stock: %w", ErrConstraintViolation)
	ErrMaxQuantityExceeded = fmt.Errorf("quantity exceeds allowed maximum: %w", ErrConstraintViolation)
)

// CoercionError reports the field whose value could not be coerced.
type CoercionError struct {
	Field string
	Value interface{}
	Kind  string
	Err   error
}

func (e *CoercionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot coerce %s=%v to %s: %v", e.Field, e.Value, e.Kind, e.Err)
	}
	return fmt.Sprintf("cannot coerce %s=%v to %s", e.Field, e.Value, e.Kind)
}

// Unwrap exposes both ErrTypeCoercion and the underlying parse error.
func (e *CoercionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTypeCoercion, e.Err}
	}
	return []error{ErrTypeCoercion}
}
