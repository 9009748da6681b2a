package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrUnavailable       = errors.New("unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// TransitionError is returned when an action is not legal from the current state.
type TransitionError struct {
	From    Status
	Action  Action
	Role    Role
	Awaited *Role
}

func (e *TransitionError) Error() string {
	if e.Awaited != nil {
		return fmt.Sprintf("cannot %s as %s: proposal is %s awaiting %s", e.Action, e.Role, e.From, *e.Awaited)
	}
	return fmt.Sprintf("cannot %s as %s: proposal is %s", e.Action, e.Role, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ForbiddenError names the permission or relation the actor lacks.
type ForbiddenError struct {
	ActorID string
	Reason  string
}

func (e *ForbiddenError) Error() string {
	if e.ActorID == "" {
		return "forbidden: " + e.Reason
	}
	return fmt.Sprintf("forbidden: %s %s", e.ActorID, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Unavailable wraps a collaborator failure so callers can match ErrUnavailable
// while the cause stays reachable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
