// Package errors defines the sentinel errors shared by the tree engines,
// the ingestion pipeline and the HTTP surface, plus an AppError that carries
// an HTTP status alongside a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCapacityExceeded = errors.New("node capacity exceeded")
	ErrAllocationFailed = errors.New("node allocation failed")
	ErrPostNotFound     = errors.New("post not found")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownEngine    = errors.New("unknown engine")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is reports whether any error in err's chain matches target. It saves
// importers of this package from also importing the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrUnknownEngine):
		return http.StatusBadRequest
	case errors.Is(err, ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, ErrAllocationFailed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
