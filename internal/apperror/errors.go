// Package apperror defines the errors handlers return to the client. Each
// carries an HTTP status, a machine-readable type and a message that is safe
// to show. The Echo error handler in internal/app renders them as JSON.
//
// Store, cache and assistant errors never reach the client directly: wrap
// them with one of the constructors below, usually NewInternal.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// genericMessage is all the client sees for an unexpected failure.
const genericMessage = "an unexpected error occurred"

// AppError is an error with a client-facing status and message.
type AppError struct {
	// Code is the HTTP status.
	Code int `json:"-"`

	// Type classifies the error, e.g. "not_found" or "quota_exceeded".
	Type string `json:"type"`

	// Message is safe to send to the client.
	Message string `json:"message"`

	// Internal is the cause, for logs only.
	Internal error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

func newError(code int, typ, message string, cause error) *AppError {
	return &AppError{Code: code, Type: typ, Message: message, Internal: cause}
}

// NewBadRequest is a 400 for a request that cannot be parsed.
func NewBadRequest(message string) *AppError {
	return newError(http.StatusBadRequest, "bad_request", message, nil)
}

// NewUnauthorized is a 401 for a missing or expired session.
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, "unauthorized", message, nil)
}

// NewForbidden is a 403 for a caller without the needed role.
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, "forbidden", message, nil)
}

func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, "not_found", message, nil)
}

func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, "conflict", message, nil)
}

// NewValidation is a 422 for a well-formed request with invalid values.
func NewValidation(message string) *AppError {
	return newError(http.StatusUnprocessableEntity, "validation_error", message, nil)
}

// NewTooManyRequests is a 429 for a caller over its rate limit.
func NewTooManyRequests(message string) *AppError {
	return newError(http.StatusTooManyRequests, "rate_limited", message, nil)
}

// NewInternal is a 500 with a generic message. err is kept for the log.
func NewInternal(err error) *AppError {
	return newError(http.StatusInternalServerError, "internal_error", genericMessage, err)
}

// NewBadGateway is a 502 for a failed call to the generative assistant:
// quota, network or a reply that does not parse.
func NewBadGateway(message string, err error) *AppError {
	return newError(http.StatusBadGateway, "assistant_error", message, err)
}

// NewUnavailable is a 503 for a document store that cannot be reached.
func NewUnavailable(message string, err error) *AppError {
	return newError(http.StatusServiceUnavailable, "store_unavailable", message, err)
}

// NewQuotaExceeded is a 507 for a document that does not fit in local
// storage even after its embedded images were dropped.
func NewQuotaExceeded(message string) *AppError {
	return newError(http.StatusInsufficientStorage, "quota_exceeded", message, nil)
}

// SafeMessage returns err's client message, or the generic one when err is
// not an AppError.
func SafeMessage(err error) string {
	if appErr, ok := as(err); ok {
		return appErr.Message
	}
	return genericMessage
}

// SafeCode returns err's HTTP status, or 500 when err is not an AppError.
func SafeCode(err error) int {
	if appErr, ok := as(err); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Is reports whether err is an AppError with the given status.
func Is(err error, code int) bool {
	appErr, ok := as(err)
	return ok && appErr.Code == code
}

func as(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
