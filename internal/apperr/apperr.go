package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the core can surface.
type Kind string

const (
	KindInvalidAmount     Kind = "invalid_amount"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindSignatureInvalid  Kind = "signature_invalid"
	KindUnknownFormat     Kind = "unknown_webhook_format"
	KindNoMatch           Kind = "no_matching_trade"
	KindNotFound          Kind = "not_found"
	KindPersistence       Kind = "persistence_failure"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func InvalidAmount(format string, args ...any) *Error {
	return New(KindInvalidAmount, format, args...)
}

func InvalidTransition(current, requested string) *Error {
	return New(KindInvalidTransition, "cannot transition from %s to %s", current, requested)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// Conflict reports a conditional update that matched zero rows: a
// concurrent transition already happened. Callers treat it as benign.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// NoMatch reports a webhook reference that resolves to no known trade.
func NoMatch(format string, args ...any) *Error {
	return New(KindNoMatch, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Persistence(err error, format string, args ...any) *Error {
	return Wrap(KindPersistence, err, format, args...)
}
