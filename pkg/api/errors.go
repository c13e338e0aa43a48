package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	StatusCode int
	Method     string
	Endpoint   string
	Message    string // envelope message, if the body had one
	Body       string
}

func newError(r *Response) *Error {
	e := &Error{
		StatusCode: r.StatusCode,
		Method:     r.Method,
		Endpoint:   r.Endpoint,
		Body:       string(r.Body),
	}
	env := r.Envelope()
	switch {
	case env.Message != "":
		e.Message = env.Message
	case env.Error != "":
		e.Message = env.Error
	default:
		e.Message = http.StatusText(r.StatusCode)
	}
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap classifies the error for reports: 5xx is an application failure,
// anything else an unexpected status.
func (e *Error) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return core.ErrServerError
	}
	return core.ErrUnexpectedStatus
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
