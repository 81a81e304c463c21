package contract

import (
	"errors"
	"fmt"
)

// ErrorKind separates deployment mistakes from rejected calls.
type ErrorKind int

const (
	// ConfigurationError means the contract was never initialized.
	ConfigurationError ErrorKind = iota + 1
	// ValidationError means the call violated a precondition.
	ValidationError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration_error"
	case ValidationError:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Code is a stable machine readable reason.
type Code string

const (
	CodeAdminNotConfigured Code = "admin_not_configured"
	CodeAlreadyInitialized Code = "already_initialized"
	CodeNotFound           Code = "not_found"
	CodeUnauthorized       Code = "unauthorized"
	CodeInvalidState       Code = "invalid_state"
	CodeInvalidAmount      Code = "invalid_amount"
	CodeInvalidTimeout     Code = "invalid_timeout"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeExpired            Code = "expired"
	CodeNotExpired         Code = "not_expired"
	CodeOverflow           Code = "overflow"
)

// Error aborts a contract call. Two errors match under errors.Is when their
// codes are equal, so the sentinels below can be compared against any detail
// message.
type Error struct {
	Kind    ErrorKind
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrAdminNotConfigured = &Error{Kind: ConfigurationError, Code: CodeAdminNotConfigured, Message: "admin not configured"}
	ErrAlreadyInitialized = Validation(CodeAlreadyInitialized, "contract already initialized")
	ErrNotFound           = Validation(CodeNotFound, "not found")
	ErrUnauthorized       = Validation(CodeUnauthorized, "unauthorized")
	ErrInvalidState       = Validation(CodeInvalidState, "invalid state")
	ErrInvalidAmount      = Validation(CodeInvalidAmount, "amount must be positive")
	ErrInvalidTimeout     = Validation(CodeInvalidTimeout, "invalid timeout")
	ErrInvalidArgument    = Validation(CodeInvalidArgument, "invalid argument")
	ErrExpired            = Validation(CodeExpired, "escrow expired")
	ErrNotExpired         = Validation(CodeNotExpired, "escrow not expired")
	ErrOverflow           = Validation(CodeOverflow, "arithmetic overflow")
)

// Validation builds a ValidationError.
func Validation(code Code, msg string) *Error {
	return &Error{Kind: ValidationError, Code: code, Message: msg}
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(code Code, format string, args ...any) *Error {
	return Validation(code, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of a contract error, or 0 for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf reports the code of a contract error, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
