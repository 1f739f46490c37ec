package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an application error. Codes map onto HTTP statuses at the
// boundary and onto retry decisions inside services.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeInsufficientInventory  Code = "INSUFFICIENT_INVENTORY"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeSelfTrade              Code = "SELF_TRADE"
	CodeExternalLedgerFailure  Code = "EXTERNAL_LEDGER_FAILURE"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeInternal               Code = "INTERNAL"
)

// Error is the application error type carried from services to handlers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code the global error handler should use.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return 404
	case CodeUnauthorized:
		return 403
	case CodeInvalidInput:
		return 400
	case CodeInvalidState, CodeInsufficientInventory, CodeInsufficientBalance,
		CodeSelfTrade, CodeConcurrentModification:
		return 409
	case CodeExternalLedgerFailure:
		return 502
	default:
		return 500
	}
}

// Retryable reports whether the caller may safely retry the operation.
func (e *Error) Retryable() bool {
	return e.Code == CodeExternalLedgerFailure || e.Code == CodeConcurrentModification
}

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause; the cause is kept for logs, not for API responses.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(CodeUnauthorized, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(CodeInvalidState, format, args...)
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(CodeInvalidInput, format, args...)
}

func InsufficientInventory(format string, args ...interface{}) *Error {
	return New(CodeInsufficientInventory, format, args...)
}

func InsufficientBalance(format string, args ...interface{}) *Error {
	return New(CodeInsufficientBalance, format, args...)
}

func SelfTrade(format string, args ...interface{}) *Error {
	return New(CodeSelfTrade, format, args...)
}

func ExternalLedger(err error, format string, args ...interface{}) *Error {
	return Wrap(CodeExternalLedgerFailure, err, format, args...)
}

func ConcurrentModification(format string, args ...interface{}) *Error {
	return New(CodeConcurrentModification, format, args...)
}

// CodeOf extracts the Code from err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
