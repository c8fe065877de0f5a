package hatena

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrThrottled is returned when the upstream asked us to back off and the
	// window has not passed yet.
	ErrThrottled = errors.New("upstream throttled")

	// ErrUserNotFound is returned by FetchUserInfo for unknown users.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUsername is returned for names the upstream can never accept.
	ErrInvalidUsername = errors.New("invalid username")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local throttle blocks.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network, timeout and decode errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is an upstream failure with its HTTP context.
type APIError struct {
	Feed       string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hatena %s %s error (status %d): %s: %v",
			e.Feed, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("hatena %s %s error (status %d): %s",
		e.Feed, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error class. Success codes yield "".
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

// ClassOf returns the class of an error produced by the client. Cancellation
// has no class and is never retried; per-request timeouts count as network.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if errors.Is(err, ErrThrottled) {
		return ErrorClassRateLimit
	}
	if errors.Is(err, ErrInvalidUsername) || errors.Is(err, ErrUserNotFound) {
		return ErrorClassClient
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx will not change on a second try
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
