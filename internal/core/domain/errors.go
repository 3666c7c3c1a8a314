package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the gateways, the services and the HTTP layer.
// Gateways translate driver errors into these; callers branch with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAccountNotFound    = errors.New("account not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrEmailConflict      = errors.New("email already in use")
	ErrEmptyBatch         = errors.New("batch cannot be empty")
	ErrBatchTooLarge      = errors.New("batch exceeds maximum size")
	ErrInfrastructure     = errors.New("backing store unavailable")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("access forbidden")
)

// ValidationError reports a malformed input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Infrastructure wraps an unexpected gateway failure so that it matches
// ErrInfrastructure while keeping the driver error in the chain.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// KindOf returns a short, stable label for err, suitable for metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, ErrEmailConflict):
		return "email_conflict"
	case errors.Is(err, ErrDocumentExists):
		return "document_exists"
	case errors.Is(err, ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, ErrBatchTooLarge):
		return "batch_too_large"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidCredentials):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "infrastructure"
	}
}
