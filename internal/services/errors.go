package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures so transports can map them
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindDependency ErrorKind = "dependency"
	KindInternal   ErrorKind = "internal"
)

// Error codes surfaced to clients
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeCycleNotAvailable   = "CYCLE_NOT_AVAILABLE"
	CodeOutstandingPenalty  = "OUTSTANDING_PENALTY"
	CodeActiveBookingExists = "ACTIVE_BOOKING_EXISTS"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeInvalidBookingState = "INVALID_BOOKING_STATE"
	CodeCycleNotFound       = "CYCLE_NOT_FOUND"
	CodeInvalidCycleState   = "INVALID_CYCLE_STATE"
	CodeDuplicateCycle      = "DUPLICATE_CYCLE"
	CodeLocationNotFound    = "LOCATION_NOT_FOUND"
	CodeDuplicateLocation   = "DUPLICATE_LOCATION"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeDuplicatePayment    = "DUPLICATE_PAYMENT"
	CodeRouteUnavailable    = "ROUTE_UNAVAILABLE"
	CodeForbidden           = "INSUFFICIENT_PERMISSIONS"
	CodeInternal            = "INTERNAL_ERROR"
)

// MsgCycleNotAvailable is returned to every losing allocation attempt
const MsgCycleNotAvailable = "Cycle not found or already booked"

// Error is the tagged result every service operation fails with
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

func validationError(message string) *Error {
	return newError(KindValidation, CodeValidation, message, nil)
}

func conflictError(code, message string) *Error {
	return newError(KindConflict, code, message, nil)
}

func notFoundError(code, message string) *Error {
	return newError(KindNotFound, code, message, nil)
}

func forbiddenError(message string) *Error {
	return newError(KindForbidden, CodeForbidden, message, nil)
}

func dependencyError(code, message string, cause error) *Error {
	return newError(KindDependency, code, message, cause)
}

func internalError(cause error) *Error {
	return newError(KindInternal, CodeInternal, "An internal error occurred", cause)
}

// AsError extracts a service error. Anything else is reported as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return internalError(err)
}

// IsKind reports whether err is a service error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}
