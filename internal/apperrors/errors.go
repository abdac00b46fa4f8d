package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
)

// NotFoundError reports a missing record of the given kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound reports that no kind with the given id exists.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransitionError reports a status change the work order state machine refuses.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move work order from %q to %q: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move work order from %q to %q", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidTransition reports a status change the lifecycle does not allow.
func InvalidTransition(from, to, reason string) error {
	return &TransitionError{From: from, To: to, Reason: reason}
}

// InsufficientStockError is returned when a consumption asks for more than is on hand.
type InsufficientStockError struct {
	PartID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for part %q: requested %d, available %d", e.PartID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientStock reports a consumption larger than the stock on hand.
func InsufficientStock(partID string, requested, available int) error {
	return &InsufficientStockError{PartID: partID, Requested: requested, Available: available}
}

// ValidationError carries the offending field.
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

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation reports a bad input field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
