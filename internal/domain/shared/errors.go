// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Every error surfaced by the matching service wraps exactly
// one of the first four so callers can branch with errors.Is().
var (
	// ErrValidation marks malformed requests. Returned directly to the caller.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing user profile or entity.
	ErrNotFound = errors.New("entity not found")
	// ErrInfrastructure marks store or transport failures. Retryable.
	ErrInfrastructure = errors.New("infrastructure error")
	// ErrConflict marks a lost compare-and-remove race. Handled internally by retry.
	ErrConflict = errors.New("conflict")

	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrTimeout            = errors.New("operation timeout")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "queue", "matching", "profile"
	Op      string // Operation that failed, e.g., "Upsert", "FindMatch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Validation is shorthand for a validation failure.
func Validation(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// Infrastructure wraps a backing-store or transport failure.
func Infrastructure(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrInfrastructure, "backing service failed", err)
}

// Profile domain errors
var (
	ErrProfileNotFound = NewDomainError("profile", "Find", ErrNotFound, "user profile not found")
	ErrInvalidUserID   = NewDomainError("profile", "Validate", ErrValidation, "user id must not be empty")
)

// Queue domain errors
var (
	ErrEntryNotFound  = NewDomainError("queue", "Get", ErrNotFound, "queue entry not found")
	ErrClaimConflict  = NewDomainError("queue", "ClaimPair", ErrConflict, "entry changed or was claimed concurrently")
	ErrAlreadyClaimed = NewDomainError("queue", "MarkClaiming", ErrConflict, "user is already mid-claim")
)

// Session errors
var (
	ErrSessionCreate = NewDomainError("session", "Create", ErrInfrastructure, "failed to create session")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInfrastructure checks if the error came from a backing service.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsConflict checks if the error is an optimistic concurrency failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

