package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Lifecycle and restore error codes.
const (
	// ErrGuardViolation: a transition's precondition failed (dependency
	// exists, wrong actor, wrong source state). Never partially applied.
	ErrGuardViolation = "GUARD_VIOLATION"

	// ErrConcurrentModification: the workflow changed between guard check
	// and commit, and the bounded retries were exhausted. Retryable.
	ErrConcurrentModification = "CONCURRENT_MODIFICATION"

	// ErrUnresolvedReference: a restore record referenced a natural key
	// that does not exist in the target store. Recorded in the restore
	// report; never fatal to the batch.
	ErrUnresolvedReference = "UNRESOLVED_REFERENCE"

	// ErrArchiveIntegrity: the archive is unreadable or its checksum does
	// not match. Aborts the restore before any record is processed.
	ErrArchiveIntegrity = "ARCHIVE_INTEGRITY"
)

// ErrorEnvelope is the standard error type carried across package
// boundaries. It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the envelope code of err, unwrapping as needed, or
// ErrInternalError when no envelope is found. A nil error has no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ErrInternalError
}

// IsCode reports whether err carries an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	var env *ErrorEnvelope
	return errors.As(err, &env) && env.Code == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR.
func NewValidationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrValidationError, Message: msg}
}

// NewGuardViolationError returns a GUARD_VIOLATION error with a
// human-readable reason.
func NewGuardViolationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrGuardViolation, Message: msg}
}

// NewConcurrentModificationError returns a CONCURRENT_MODIFICATION error.
func NewConcurrentModificationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConcurrentModification, Message: msg}
}

// NewUnresolvedReferenceError returns an UNRESOLVED_REFERENCE error.
func NewUnresolvedReferenceError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnresolvedReference, Message: msg}
}

// NewArchiveIntegrityError returns an ARCHIVE_INTEGRITY error.
func NewArchiveIntegrityError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrArchiveIntegrity, Message: msg}
}
