// Package domain provides the canonical types and error taxonomy for the
// helpdesk intake engine.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a failure crossing a component boundary.
type ErrorKind string

const (
	// KindAuth indicates the remote session token could not be obtained.
	KindAuth ErrorKind = "auth"

	// KindReconciliation indicates the remote user could not be resolved or created.
	KindReconciliation ErrorKind = "reconciliation"

	// KindAccessDenied indicates an ownership mismatch on a ticket.
	KindAccessDenied ErrorKind = "access_denied"

	// KindNotFound indicates the remote entity does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindGateway indicates a network failure, timeout or non-2xx remote reply.
	KindGateway ErrorKind = "gateway"

	// KindInvalidRequest indicates a caller error detected before any network call.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindConflict indicates a concurrent modification of the same record.
	KindConflict ErrorKind = "conflict"

	// KindUnavailable indicates a local collaborator (store, language model) is down.
	KindUnavailable ErrorKind = "unavailable"
)

// Sentinel errors usable with errors.Is. Matching is done on Kind only.
var (
	ErrAuth           = &Error{Kind: KindAuth}
	ErrReconciliation = &Error{Kind: KindReconciliation}
	ErrAccessDenied   = &Error{Kind: KindAccessDenied}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrGateway        = &Error{Kind: KindGateway}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrUnavailable    = &Error{Kind: KindUnavailable}
)

// Error is the tagged failure returned at the gateway and store boundaries.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Code is the remote error code when one was reported (e.g. ERROR_SESSION_TOKEN_INVALID)
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Op names the operation that failed
	Op string `json:"op,omitempty"`

	// StatusCode is the remote HTTP status, if any
	StatusCode int `json:"-"`

	// Err is the underlying cause
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatusCode returns the status a front-end should surface for this error.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuth, KindUnavailable:
		return http.StatusServiceUnavailable
	case KindReconciliation, KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithOp sets the failing operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode sets the remote error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithStatusCode records the remote HTTP status.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// KindOf returns the kind of err, or "" when err carries no domain kind.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// StatusOf maps any error to an HTTP status code.
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
