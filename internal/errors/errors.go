// Package errors provides error code definitions surfaced at the mutation
// boundary of the record locking engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "internal_error"
	ErrInvalid    ErrorCode = "invalid_input"
	ErrNotFound   ErrorCode = "not_found"
	ErrDuplicate  ErrorCode = "duplicate"
	ErrPermission ErrorCode = "permission_denied"

	// Database errors
	ErrDatabase   ErrorCode = "database_error"
	ErrMigration  ErrorCode = "migration_failed"
	ErrConstraint ErrorCode = "constraint_violation"

	// Locking errors
	ErrRecordLocked       ErrorCode = "record_locked"
	ErrRecordLockConflict ErrorCode = "record_lock_conflict"
)

// AppError represents an application error with code, message, and an
// optional structured payload for the caller.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps an error code to its HTTP-equivalent status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrRecordLocked:
		return http.StatusLocked
	case ErrRecordLockConflict, ErrDuplicate, ErrConstraint:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalid:
		return http.StatusBadRequest
	case ErrPermission:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails attaches a structured payload and returns the error.
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Is checks if an error (anywhere in its chain) carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError extracts the AppError from an error chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
