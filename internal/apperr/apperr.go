// Package apperr is the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindPermissionDenied  Kind = "permission_denied"
	KindLimitExceeded     Kind = "limit_exceeded"
	KindAlreadyProcessed  Kind = "already_processed"
	KindValidationFailed  Kind = "validation_failed"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindUnauthenticated   Kind = "unauthenticated"
)

// Error is a user-facing failure. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied, Message: "permission denied"}
	ErrLimitExceeded     = &Error{Kind: KindLimitExceeded, Message: "limit exceeded"}
	ErrAlreadyProcessed  = &Error{Kind: KindAlreadyProcessed, Message: "already processed"}
	ErrValidationFailed  = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient coins"}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) *Error {
	return New(KindPermissionDenied, format, args...)
}

func LimitExceeded(format string, args ...any) *Error {
	return New(KindLimitExceeded, format, args...)
}

func AlreadyProcessed(format string, args ...any) *Error {
	return New(KindAlreadyProcessed, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidationFailed, format, args...)
}

func InsufficientFunds(format string, args ...any) *Error {
	return New(KindInsufficientFunds, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" for
// infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindLimitExceeded:
		return http.StatusTooManyRequests
	case KindAlreadyProcessed:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
