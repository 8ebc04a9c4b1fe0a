// Package apierr builds errors returned from HTTP handlers.
package apierr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type ErrorMessage struct {
	// Reason is the message shown to clients.
	Reason string

	// Advice tells clients how to fix their request. Optional.
	Advice string

	// Cause is the internal error. It is logged, not shown to clients.
	Cause error
}

func (m ErrorMessage) Error() string {
	msg := m.Reason
	if m.Advice != "" {
		msg += " (" + m.Advice + ")"
	}
	if m.Cause != nil {
		msg += ": " + m.Cause.Error()
	}
	return msg
}

func (m ErrorMessage) Unwrap() error {
	return m.Cause
}

// Text is the body of responses for the error.
func (m ErrorMessage) Text() string {
	if m.Advice == "" {
		return m.Reason
	}
	return m.Reason + "\n" + m.Advice
}

type ErrorMessageOption func(in *ErrorMessage) *ErrorMessage

func WithAdvice(advice string) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if advice != "" {
			in.Advice = advice
		}
		return in
	}
}

func WithError(err error) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if err != nil {
			in.Cause = err
		}
		return in
	}
}

func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason}
	for _, opt := range opts {
		msg = *opt(&msg)
	}

	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func BadRequest(reason string, err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusBadRequest, reason, WithError(err))
}

func UnsupportedMediaType(reason string) *echo.HTTPError {
	return NewErrorMessage(http.StatusUnsupportedMediaType, reason)
}

func ServiceUnavailable(reason string, err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusServiceUnavailable, reason, WithError(err))
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusInternalServerError, "internal server error",
		WithAdvice("see the server log."), WithError(err),
	)
}

// TextErrorHandler responds errors in text/plain.
//
// Errors built by this package are responded with their Text,
// other *echo.HTTPError with its message, and anything else as internal server error.
func TextErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he, ok := err.(*echo.HTTPError)
	if !ok {
		he = InternalServerError(err)
	}

	var body string
	switch m := he.Message.(type) {
	case ErrorMessage:
		body = m.Text()
	case string:
		body = m
	case error:
		body = m.Error()
	default:
		body = http.StatusText(he.Code)
	}

	if he.Code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	} else {
		c.Logger().Info(err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.String(he.Code, body)
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
