// Package errors provides the standardized error taxonomy shared by the store,
// lifecycle, aggregation and HTTP layers.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeConflict          ErrorCode = "CONFLICT"

	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the single error shape surfaced by the core.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	// cause is logged, never rendered.
	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying failure of internal and timeout errors.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or details.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &StandardError{Code: ErrCodeValidation}
	ErrNotFound          = &StandardError{Code: ErrCodeNotFound}
	ErrForbidden         = &StandardError{Code: ErrCodeForbidden}
	ErrInvalidTransition = &StandardError{Code: ErrCodeInvalidTransition}
	ErrConflict          = &StandardError{Code: ErrCodeConflict}
	ErrUnauthenticated   = &StandardError{Code: ErrCodeUnauthenticated}
	ErrTimeout           = &StandardError{Code: ErrCodeTimeout}
	ErrInternal          = &StandardError{Code: ErrCodeInternal}
)

// ==========================
// 2. Constructors
// ==========================

func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Application validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFieldValidationError carries per-field failures in Metadata["errors"].
func NewFieldValidationError(details string, fields []FieldError) *StandardError {
	e := NewValidationError(details)
	e.Metadata = map[string]interface{}{"errors": fields}
	return e
}

// FieldError is a single payload validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCollectionNotFoundError(collection string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Collection not found",
		Details:   fmt.Sprintf("collection: %s", collection),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Operation not permitted for caller",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError includes both statuses so a retrying admin UI can
// show what the record is now.
func NewInvalidTransitionError(current, target string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Status transition not allowed",
		Details:   fmt.Sprintf("%s -> %s", current, target),
		Retryable: false,
		Metadata: map[string]interface{}{
			"currentStatus": current,
			"targetStatus":  target,
		},
		Timestamp: time.Now().UTC(),
	}
}

func NewConflictError(id string, version time.Time) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Record was modified concurrently",
		Details:   fmt.Sprintf("id: %s, version: %s", id, version.UTC().Format(time.RFC3339Nano)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthenticatedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthenticated,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRateLimitedError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Details:   fmt.Sprintf("key: %s", key),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError keeps err for logs only; clients see a generic message.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   "Request timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}


// ==========================
// 3. Classification
// ==========================

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize converts any error into a StandardError. Deadline expiry becomes
// a timeout; anything unclassified is internal.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return NewInternalError(err)
}

func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}
