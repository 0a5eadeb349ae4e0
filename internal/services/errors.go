package services

import (
	"errors"
	"fmt"

	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/statemachine"
)

// Common service errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCompensated       = errors.New("operation failed and was rolled back")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ValidationError names the offending input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError names the first product that cannot cover its line
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// CompensatedError reports a failed multi-step write.
// Pending is true when some compensation could not be applied yet and recovery will retry it.
type CompensatedError struct {
	Cause   error
	Pending bool
	SagaID  uint
}

func (e *CompensatedError) Error() string {
	if e.Pending {
		return fmt.Sprintf("sale failed, rollback pending (saga %d): %v", e.SagaID, e.Cause)
	}
	return fmt.Sprintf("sale failed and was rolled back: %v", e.Cause)
}

func (e *CompensatedError) Unwrap() []error {
	return []error{ErrCompensated, e.Cause}
}

// ConflictError describes a conflict with the stored state
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// notFound maps repository misses to ErrNotFound
func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if repository.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// stateErr maps rejected transitions to ErrInvalidState
func stateErr(err error) error {
	if errors.Is(err, statemachine.ErrInvalidTransition) {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return err
}
