// Package errs defines the error taxonomy shared by every governed write
// path: NotFound, Forbidden, InvalidTransition, Conflict, ValidationError.
// Services tag errors with a Kind; a single echo error handler maps Kinds to
// HTTP statuses so handlers never translate errors themselves.
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error raised by the governance core.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidTransition
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error. It wraps an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err, or KindUnknown for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is tagged KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsForbidden reports whether err is tagged KindForbidden.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsConflict reports whether err is tagged KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// httpStatus maps a Kind to the status surfaced to API clients. Conflict is
// 409 so callers know to re-fetch and retry; InvalidTransition is 422 because
// the request was well-formed but the lifecycle rejects it.
func httpStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the actionable message for a Kind.
func clientMessage(k Kind, msg string) string {
	if k == KindConflict {
		return msg + " (refresh and retry)"
	}
	return msg
}

// HTTPErrorHandler converts tagged errors into echo HTTP errors. Untagged
// errors and echo.HTTPError values pass through to echo's default handler.
func HTTPErrorHandler(next echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var e *Error
		if errors.As(err, &e) {
			err = echo.NewHTTPError(httpStatus(e.Kind), map[string]string{
				"error":   e.Kind.String(),
				"message": clientMessage(e.Kind, e.Msg),
			})
		}
		next(err, c)
	}
}

// AsOpaqueNotFound rewrites Forbidden into NotFound with the given message.
// Patient-scoped reads use it so callers cannot probe for patient existence.
func AsOpaqueNotFound(err error, format string, args ...interface{}) error {
	if IsForbidden(err) {
		return NotFound(format, args...)
	}
	return err
}
