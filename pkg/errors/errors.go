package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrOutsideAvailability
	ErrSlotUnavailable
	ErrInvalidTransition
	ErrTerminalState
	ErrScheduleBusy
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// OutsideAvailability signals a candidate interval outside the
// practitioner's working window or workday set.
func OutsideAvailability(message string) *AppError {
	return &AppError{
		Code:    ErrOutsideAvailability,
		Message: message,
	}
}

// SlotUnavailable signals an overlap with another active appointment.
func SlotUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrSlotUnavailable,
		Message: message,
	}
}

// InvalidTransition signals a state machine rule violation.
func InvalidTransition(from, event string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot apply %s to appointment in status %s", event, from),
	}
}

// TerminalState signals an attempted mutation of a finished appointment.
func TerminalState(status string) *AppError {
	return &AppError{
		Code:    ErrTerminalState,
		Message: fmt.Sprintf("appointment in terminal status %s cannot be modified", status),
	}
}

// ScheduleBusy signals that exclusive access to a practitioner's
// schedule could not be acquired within the wait budget.
func ScheduleBusy(err error) *AppError {
	return &AppError{
		Code:    ErrScheduleBusy,
		Message: "practitioner schedule is busy, retry later",
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err, or ErrInternal if err is not
// an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
