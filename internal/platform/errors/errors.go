package errors

import (
	"errors"
	"fmt"
)

// Error types for the checkout core's taxonomy.
const (
	ErrorTypeValidation          = "validation"
	ErrorTypeNotFound            = "not_found"
	ErrorTypeForbidden           = "forbidden"
	ErrorTypeInsufficient        = "insufficient"
	ErrorTypeGone                = "gone"
	ErrorTypeIdempotencyMismatch = "idempotency_mismatch"
	ErrorTypeStorageTransient    = "storage_transient"
	ErrorTypeInternal            = "internal"
)

// AppError represents an application error with type and context.
type AppError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.Type == appErr.Type
	}

	return errors.Is(e.Err, target)
}

func NewValidation(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

func NewNotFound(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

func NewForbidden(message string) *AppError {
	return &AppError{Type: ErrorTypeForbidden, Message: message}
}

func NewInsufficient(message string) *AppError {
	return &AppError{Type: ErrorTypeInsufficient, Message: message}
}

func NewGone(message string) *AppError {
	return &AppError{Type: ErrorTypeGone, Message: message}
}

func NewIdempotencyMismatch(message string) *AppError {
	return &AppError{Type: ErrorTypeIdempotencyMismatch, Message: message}
}

func NewStorageTransient(message string) *AppError {
	return &AppError{Type: ErrorTypeStorageTransient, Message: message}
}

func NewInternal(message string) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message}
}

// Wrap wraps an existing error with a message, preserving its type if it
// is already an AppError and defaulting to Internal otherwise.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Type: appErr.Type, Message: message, Err: err}
	}

	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

func IsValidation(err error) bool          { return hasErrorType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool            { return hasErrorType(err, ErrorTypeNotFound) }
func IsForbidden(err error) bool           { return hasErrorType(err, ErrorTypeForbidden) }
func IsInsufficient(err error) bool        { return hasErrorType(err, ErrorTypeInsufficient) }
func IsGone(err error) bool                { return hasErrorType(err, ErrorTypeGone) }
func IsIdempotencyMismatch(err error) bool { return hasErrorType(err, ErrorTypeIdempotencyMismatch) }
func IsStorageTransient(err error) bool    { return hasErrorType(err, ErrorTypeStorageTransient) }
func IsInternal(err error) bool            { return hasErrorType(err, ErrorTypeInternal) }

func hasErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}

	return false
}

// GetErrorType returns the error type, or "unknown" if not an AppError.
func GetErrorType(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	return "unknown"
}
