package broker

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindAuthentication       Kind = "authentication"
	KindAccountNotConfigured Kind = "account_not_configured"
	KindUpstreamTimeout      Kind = "upstream_timeout"
	KindShapeMismatch        Kind = "shape_mismatch"
	KindUpstreamRejection    Kind = "upstream_rejection"
	KindNotFound             Kind = "not_found"
	KindInvalidRequest       Kind = "invalid_request"
)

// Sentinels for errors.Is.
var (
	ErrAuthentication       = &Error{Kind: KindAuthentication}
	ErrAccountNotConfigured = &Error{Kind: KindAccountNotConfigured}
	ErrUpstreamTimeout      = &Error{Kind: KindUpstreamTimeout}
	ErrShapeMismatch        = &Error{Kind: KindShapeMismatch}
	ErrUpstreamRejection    = &Error{Kind: KindUpstreamRejection}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
)

// Error is a request scoped gateway failure. Body carries the raw upstream
// response when there was one.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Body    []byte
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (upstream http %d)", msg, e.Status)
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind so sentinels compare equal to any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WithUpstream attaches upstream status and body.
func (e *Error) WithUpstream(status int, body []byte) *Error {
	e.Status = status
	e.Body = body
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// KindOf reports the Kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
