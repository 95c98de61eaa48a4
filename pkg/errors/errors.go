// Package errors defines the error taxonomy returned by services and rendered
// by the HTTP layer. Every failure a client can observe maps to one AppError code.
package errors

import (
	"errors"
	"net/http"
)

// AppError is a client-facing failure. Internal carries the underlying cause
// for logs and is never serialised.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal == nil:
		return e.Message
	default:
		return e.Message + ": " + e.Internal.Error()
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal attaches cause to a copy of e; shared sentinels stay untouched.
func (e *AppError) WithInternal(cause error) *AppError {
	if e == nil {
		return nil
	}
	out := *e
	out.Internal = cause
	return &out
}

// withMessage copies e under a caller supplied message.
func (e *AppError) withMessage(message string) *AppError {
	out := *e
	out.Message = message
	out.Internal = nil
	return &out
}

func define(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

var (
	ErrBadRequest     = define(http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
	ErrUnauthorized   = define(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrTokenRevoked   = define(http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
	ErrForbidden      = define(http.StatusForbidden, "FORBIDDEN", "You do not have access to this resource")
	ErrNotFound       = define(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrConflict       = define(http.StatusConflict, "CONFLICT", "Resource already exists")
	ErrRateLimit      = define(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, please slow down")
	ErrInternalServer = define(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// New defines an ad-hoc error outside the shared taxonomy.
func New(code, message string, statusCode int) *AppError {
	return define(statusCode, code, message)
}

// Wrap reports err as an internal failure described by message.
func Wrap(err error, message string) *AppError {
	return ErrInternalServer.withMessage(message).WithInternal(err)
}

// FromError finds the AppError in err's chain, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

func NewBadRequest(message string) *AppError { return ErrBadRequest.withMessage(message) }
func NewNotFound(message string) *AppError   { return ErrNotFound.withMessage(message) }
func NewConflict(message string) *AppError   { return ErrConflict.withMessage(message) }
func NewForbidden(message string) *AppError  { return ErrForbidden.withMessage(message) }

// Is reports whether err's chain holds an AppError with target's code.
func Is(err error, target *AppError) bool {
	if target == nil {
		return false
	}
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == target.Code
}
