package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and unreadable bodies.
	ErrorClassNetwork ErrorClass = "network"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is matched by every *ExhaustedError.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTooManyIDs is returned when a multi-get exceeds the API batch limit.
	ErrTooManyIDs = errors.New("too many ids for one request")
)

// APIError describes a failed API call.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string

	// RetryAfter is the server-requested wait. Only meaningful when
	// HasRetryAfter is true.
	RetryAfter    time.Duration
	HasRetryAfter bool

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spotify %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("spotify %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every attempt of an operation failed with a
// retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts: %v", e.Op, ErrRetryExhausted, e.Attempts, e.Last)
}

// Is reports whether target is ErrRetryExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// ClassOf returns the class of err, or "" if err carries no APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// classifyStatus maps an HTTP status code to an error class.
// Returns "" for non-error statuses.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// newStatusError builds the APIError for a non-2xx response.
func newStatusError(resp *http.Response, now time.Time) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Class:      classifyStatus(resp.StatusCode),
		Message:    resp.Status,
	}
	if apiErr.Class == ErrorClassRateLimit {
		apiErr.RetryAfter, apiErr.HasRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	}
	return apiErr
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. A date in the past
// yields zero.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
