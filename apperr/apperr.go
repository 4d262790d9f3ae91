// Package apperr carries status-aware errors from the workflow and store
// layers up to the HTTP handlers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrBadRequest   = New("bad_request", http.StatusBadRequest, "")
	ErrValidation   = New("validation_error", http.StatusBadRequest, "")
	ErrEmptyBody    = New("empty_body", http.StatusBadRequest, "request body is empty")
	ErrUnauthorized = New("unauthorized", http.StatusUnauthorized, "Invalid credentials")
	ErrForbidden    = New("forbidden", http.StatusForbidden, "Permission denied")
	ErrNotFound     = New("not_found", http.StatusNotFound, "")
	ErrConflict     = New("conflict", http.StatusConflict, "")
	ErrRateLimited  = New("rate_limited", http.StatusTooManyRequests, "too many requests")
	ErrInternal     = New("internal_error", http.StatusInternalServerError, "")
	ErrUnavailable  = New("service_unavailable", http.StatusServiceUnavailable, "")
	ErrDatabase     = New("database_error", http.StatusInternalServerError, "")
)

// Error is an application error with the HTTP status it maps to. Values
// derived from a sentinel with With, Wrap or WithFields still match it
// under errors.Is.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Status  int            `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
	Err     error          `json:"-"`
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// text is the client-facing message: explicit message, then cause, then code.
func (e *Error) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Code
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if s := e.text(); s != "" {
		return s
	}
	return "error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Status == t.Status
}

func derive(base *Error) *Error {
	if base == nil {
		base = ErrInternal
	}
	out := *base
	return &out
}

// With returns a copy of base carrying message.
func With(base *Error, message string) *Error {
	e := derive(base)
	e.Message = message
	return e
}

// Wrap attaches err as the cause of a copy of base. An empty message keeps
// base's own, or falls through to err's text.
func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	e := derive(base)
	e.Err = err
	if message != "" {
		e.Message = message
	}
	return e
}

// WithFields returns a copy of base with per-field details, typically
// validation failures.
func WithFields(base *Error, fields map[string]any) *Error {
	if base == nil {
		return nil
	}
	e := derive(base)
	e.Fields = fields
	return e
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// Status is the HTTP status for err; untyped errors are 500.
func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return ErrInternal.Code
}

func Message(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.text()
	}
	return err.Error()
}

// Payload renders err as the JSON body returned to API clients.
func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	body := map[string]any{
		"code":    Code(err),
		"message": Message(err),
	}
	if e, ok := As(err); ok && len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	return body
}
