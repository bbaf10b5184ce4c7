package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration and grading errors. Every precondition violation is reported
// through one of these before any write happens; once the write phase starts,
// store failures surface as ErrPersistence.
var (
	ErrAlreadyRegistered  = New("ALREADY_REGISTERED", http.StatusConflict, "student already registered for section")
	ErrAlreadyCompleted   = New("ALREADY_COMPLETED", http.StatusConflict, "student already completed section")
	ErrPrerequisiteNotMet = New("PREREQUISITE_NOT_MET", http.StatusUnprocessableEntity, "prerequisite courses not completed")
	ErrSectionFull        = New("SECTION_FULL", http.StatusConflict, "section has reached maximum capacity")
	ErrRegistrationClosed = New("REGISTRATION_CLOSED", http.StatusUnprocessableEntity, "registration window is closed")
	ErrNotRegistered      = New("NOT_REGISTERED", http.StatusConflict, "no active registration for section")
	ErrScoreOutOfRange    = New("SCORE_OUT_OF_RANGE", http.StatusBadRequest, "score outside assessment range")
	ErrDependencyConflict = New("DEPENDENCY_CONFLICT", http.StatusConflict, "resource is referenced by other records")
	ErrPersistence        = New("PERSISTENCE_FAILURE", http.StatusInternalServerError, "storage operation failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured details,
// e.g. the list of missing prerequisite course codes.
func WithDetails(err *Error, message string, details interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	clone.Details = details
	return clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
