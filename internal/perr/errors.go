// Package perr defines the typed error kinds every core component returns.
// HTTP mapping is a single translation step at the edge (internal/httpapi),
// never duplicated into component logic.
package perr

import (
	"errors"
	"fmt"
)

// Code mirrors an HTTP status, per spec.
type Code int

const (
	CodeOK                  Code = 0
	CodeBadRequest          Code = 400
	CodeUnauthorized        Code = 401
	CodeForbidden           Code = 403
	CodeNotFound            Code = 404
	CodeUnprocessableEntity Code = 422
	CodeInternalServerError Code = 500
	CodeNotImplemented      Code = 501
	CodeServiceUnavailable  Code = 503
	CodeServerParseError    Code = 520
	CodeTimeout             Code = 504
)

// Error is the typed result every component returns instead of throwing.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return New(CodeBadRequest, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(CodeUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func UnprocessableEntity(format string, args ...any) *Error {
	return New(CodeUnprocessableEntity, format, args...)
}

func Internal(format string, args ...any) *Error {
	return New(CodeInternalServerError, format, args...)
}

func NotImplemented(format string, args ...any) *Error {
	return New(CodeNotImplemented, format, args...)
}

func ServiceUnavailable(format string, args ...any) *Error {
	return New(CodeServiceUnavailable, format, args...)
}

func ServerParseError(format string, args ...any) *Error {
	return New(CodeServerParseError, format, args...)
}

func Timeout(format string, args ...any) *Error {
	return New(CodeTimeout, format, args...)
}

// As extracts a *Error from err, if it is one or wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status code an Error should be reported with.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeServerParseError:
		return 500
	case CodeTimeout:
		return 504
	default:
		return int(e.Code)
	}
}
