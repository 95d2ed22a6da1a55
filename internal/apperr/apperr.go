// Package apperr defines the error taxonomy shared by every route: each
// failure carries a Kind that maps to exactly one HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInput         Kind = "input"
	KindNotFound      Kind = "not_found"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindExtraction    Kind = "extraction"
	KindProvider      Kind = "provider"
	KindDelivery      Kind = "delivery"
	KindInternal      Kind = "internal"
)

// Error is a classified failure. Phase names the pipeline step that failed
// (fetch, prompt, completion, extraction, validation) when one applies, and
// Raw carries unparsed provider text for diagnosis.
type Error struct {
	Kind    Kind
	Code    string
	Phase   string
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to the HTTP status clients see.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Input(code, msg string, err error) *Error {
	return &Error{Kind: KindInput, Code: code, Message: msg, Err: err}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func QuotaExceeded(msg string) *Error {
	return &Error{Kind: KindQuotaExceeded, Code: "QUOTA_EXCEEDED", Message: msg}
}

func Extraction(code, msg, raw string, err error) *Error {
	return &Error{Kind: KindExtraction, Code: code, Message: msg, Raw: raw, Err: err}
}

func Provider(code, msg string, err error) *Error {
	return &Error{Kind: KindProvider, Code: code, Message: msg, Err: err}
}

func Delivery(code, msg string, err error) *Error {
	return &Error{Kind: KindDelivery, Code: code, Message: msg, Err: err}
}

// WithPhase returns e tagged with the pipeline phase that produced it.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// As extracts an *Error from err. Unclassified errors become KindInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "internal error", Err: err}
}

// StatusOf is a shorthand for As(err).Status().
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return As(err).Status()
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
