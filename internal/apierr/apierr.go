// Package apierr defines the error kinds surfaced to API callers and their
// HTTP rendering.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mangarelay/internal/logging"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error pairs a kind with a caller-safe message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func InvalidArgument(msg string) error {
	return &Error{Kind: ErrInvalidArgument, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Upstream(msg string, cause error) error {
	return &Error{Kind: ErrUpstreamUnavailable, Msg: msg, Err: cause}
}

// HTTPStatus maps an error to the status code callers see.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal server error"
}

// Respond writes err as {"error": msg} and logs the underlying cause.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)

	var ev *zerolog.Event
	l := logging.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		ev = l.Error()
	} else {
		ev = l.Debug()
	}
	ev.Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("request failed")

	c.AbortWithStatusJSON(status, gin.H{"error": Message(err)})
}
