package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBuildInProgress   = errors.New("index build already in progress")
	ErrBuildMerge        = errors.New("index build merge failed")
	ErrStorageIO         = errors.New("storage i/o failure")
	ErrQueryParse        = errors.New("query parse error")
	ErrInvalidLimit      = errors.New("limit must be a positive integer")
	ErrInvalidInput      = errors.New("invalid input")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrNoIndex           = errors.New("no index generation published")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrQueryParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrBuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNoIndex):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable identifier for err, used in JSON
// error bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLimit):
		return "INVALID_LIMIT"
	case errors.Is(err, ErrQueryParse):
		return "QUERY_PARSE_ERROR"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrBuildInProgress):
		return "BUILD_IN_PROGRESS"
	case errors.Is(err, ErrBuildMerge):
		return "BUILD_MERGE_FAILURE"
	case errors.Is(err, ErrStorageIO):
		return "STORAGE_IO_FAILURE"
	case errors.Is(err, ErrSourceUnavailable):
		return "SOURCE_UNAVAILABLE"
	case errors.Is(err, ErrNoIndex):
		return "NO_INDEX"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}
