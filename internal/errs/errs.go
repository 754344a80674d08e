// Package errs defines the typed error kinds surfaced by all services.
//
// Handlers translate kinds to HTTP status codes; services never return raw
// database or crypto errors to callers. CryptoFailure is deliberately opaque —
// callers must not branch on the inner cause.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindBadTransition
	KindAccountLocked
	KindRateLimited
	KindCryptoFailure
	KindInternal
)

// String returns the string representation of a kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadTransition:
		return "bad_transition"
	case KindAccountLocked:
		return "account_locked"
	case KindRateLimited:
		return "rate_limited"
	case KindCryptoFailure:
		return "crypto_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindBadTransition:
		return http.StatusConflict
	case KindAccountLocked:
		return http.StatusLocked
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed service error. Message is user-visible (German);
// Fields carries field-level validation detail; Meta carries
// machine-readable extras (current_status, retry_after_seconds, ...).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Meta    map[string]interface{}
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a typed error with a user-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error wrapping an internal cause. The cause is kept
// for logging but never serialized to the client.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// WithField attaches field-level validation detail.
func (e *Error) WithField(field, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = detail
	return e
}

// WithMeta attaches a machine-readable extra.
func (e *Error) WithMeta(key string, value interface{}) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]interface{})
	}
	e.Meta[key] = value
	return e
}

// Validation is shorthand for a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound is shorthand for a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Conflict is shorthand for a conflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Forbidden is shorthand for a forbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Unauthenticated is shorthand for a missing-identity error.
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

// BadTransition builds a state-machine rejection carrying the current status.
func BadTransition(message, currentStatus string) *Error {
	return New(KindBadTransition, message).WithMeta("current_status", currentStatus)
}

// RateLimited builds a rate-limit error with a retry-after hint in seconds.
func RateLimited(retryAfter int) *Error {
	return New(KindRateLimited, "Zu viele Anfragen. Bitte versuchen Sie es später erneut.").
		WithMeta("retry_after_seconds", retryAfter)
}

// Crypto wraps any crypto-layer failure as a single opaque kind.
func Crypto(err error) *Error {
	return Wrap(KindCryptoFailure, "Interner Verarbeitungsfehler.", err)
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	return Wrap(KindInternal, "Interner Serverfehler.", err)
}

// KindOf extracts the kind of an error, defaulting to Internal for
// untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
