// Package apperr defines the typed error kinds shared by the records services
// and their translation into HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindState
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified error. Sentinels are declared with New and compared
// with errors.Is; Wrap attaches an underlying cause without changing identity.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New returns an error of the given kind. Code is a stable machine-readable
// identifier such as "invalid_transition".
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so wrapped copies
// of a sentinel still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// Validation builds an ad-hoc validation error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "validation", Message: msg}
}

// KindOf reports the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ToHTTP converts err into an echo.HTTPError. Authentication and
// authorization failures always carry a generic message.
func ToHTTP(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	switch ae.Kind {
	case KindAuthentication:
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials").SetInternal(err)
	case KindAuthorization:
		return echo.NewHTTPError(http.StatusForbidden, "forbidden").SetInternal(err)
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, ae.Message)
	case KindState:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ae.Message)
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, ae.Message)
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, ae.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
