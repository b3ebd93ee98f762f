// Package httpx holds the JSON error envelope and request decoding shared
// by every HTTP handler.
package httpx

import (
	"net/http"
)

// Kind classifies an Error and fixes its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindConflict
)

// Error is a client-facing failure. Message and Fields are rendered into
// the response body; Err is only exposed outside production.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Denied builds an authorization failure. fields carries diagnostics such
// as the required permission and the caller's role.
func Denied(message string, fields map[string]any) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Fields: fields}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Invalid builds a validation failure with optional per-field reasons.
func Invalid(message string, fieldErrors map[string]string) *Error {
	e := &Error{Kind: KindValidation, Message: message}
	if len(fieldErrors) > 0 {
		e.Fields = map[string]any{"errors": fieldErrors}
	}
	return e
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}
