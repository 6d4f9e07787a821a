package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/mmrun/internal/inference"
	"github.com/samcharles93/mmrun/internal/runner"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps a session error onto an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, runner.ErrInvalidArgument),
		errors.Is(err, inference.ErrUnsupportedModality),
		errors.Is(err, inference.ErrEmptyInput):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, runner.ErrInvalidState):
		return http.StatusConflict, "invalid_state_error"
	case errors.Is(err, inference.ErrContextOverflow):
		return http.StatusBadRequest, "context_length_exceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
