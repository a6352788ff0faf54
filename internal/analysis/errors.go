package analysis

import (
	"errors"
	"net/http"
)

// Kind classifies analysis failures for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNoMatch
	KindCanceled
	KindNotConfigured
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNoMatch:
		return "no_match"
	case KindCanceled:
		return "canceled"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "internal"
	}
}

// StatusCode maps the kind to its response status.
func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidInput, KindNoMatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by Analyze and ValidateClip. Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// StatusCode returns the HTTP status for err, 500 when err is not an *Error.
func StatusCode(err error) int {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind.StatusCode()
	}
	return http.StatusInternalServerError
}

// Message returns the caller facing message for err.
func Message(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Message
	}
	return "Error processing audio: " + err.Error()
}
