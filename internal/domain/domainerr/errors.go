package domainerr

import (
	"errors"
	"fmt"
)

// Sentinel causes for the service error taxonomy. Callers classify errors
// with errors.Is against these.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrProvider   = errors.New("provider error")
	ErrInternal   = errors.New("internal error")
)

// DomainError carries a sentinel cause plus human-readable context.
type DomainError struct {
	Err      error
	Resource string
	Message  string
}

func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s: %s", e.Err.Error(), e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewNotFoundError reports that a resource does not exist (or is not visible
// to the caller, which is deliberately indistinguishable).
func NewNotFoundError(resource, id string) *DomainError {
	return &DomainError{Err: ErrNotFound, Resource: resource, Message: id}
}

// NewConflictError reports a state conflict (duplicate active payment,
// exceeded refund ledger, optimistic lock failure).
func NewConflictError(message string) *DomainError {
	return &DomainError{Err: ErrConflict, Message: message}
}

// NewValidationError reports rejected input or a rejected webhook.
func NewValidationError(message string) *DomainError {
	return &DomainError{Err: ErrValidation, Message: message}
}

// NewInvalidStateError reports an illegal aggregate state transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{Err: ErrConflict, Message: fmt.Sprintf("invalid transition from %s to %s", from, to)}
}

// NewProviderError wraps a failure from an external payment gateway.
func NewProviderError(provider string, err error) *DomainError {
	return &DomainError{Err: ErrProvider, Resource: provider, Message: err.Error()}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsProvider(err error) bool { return errors.Is(err, ErrProvider) }
