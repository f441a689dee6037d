package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error for propagation across layers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "service_unavailable"
	default:
		return "internal"
	}
}

// Error carries a Kind and a caller-safe message.
// Err is the wrapped cause and is never rendered to HTTP clients.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Unavailable(msg string, err error) error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: err}
}

func Internal(err error) error { return &Error{Kind: KindInternal, Err: err} }

// KindOf returns the Kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to HTTP clients.
// Internal errors never leak their detail.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "Internal server error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}
