package hatena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{200, ""},
		{204, ""},
		{304, ""},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ""},
		{"cancelled", fmt.Errorf("request: %w", context.Canceled), ""},
		{"api error", &APIError{StatusCode: 502, ErrorClass: ErrorClassServer}, ErrorClassServer},
		{"wrapped api error", fmt.Errorf("fetch: %w", &APIError{StatusCode: 404, ErrorClass: ErrorClassClient}), ErrorClassClient},
		{"throttled", ErrThrottled, ErrorClassRateLimit},
		{"invalid username", ErrInvalidUsername, ErrorClassClient},
		{"unknown error", io.ErrUnexpectedEOF, ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.expected {
				t.Errorf("ClassOf() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				Feed:       FeedBookmarks,
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "hatena bookmarks server error (status 500): internal server error: connection reset",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				Feed:       FeedUser,
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
			},
			expected: "hatena user client error (status 404): not found",
		},
		{
			name: "rate limit error",
			apiError: &APIError{
				Feed:       FeedStars,
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "too many requests",
			},
			expected: "hatena stars rate_limit error (status 429): too many requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.apiError.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	apiErr := &APIError{
		StatusCode: 429,
		ErrorClass: ErrorClassRateLimit,
		Message:    "blocked by local throttle",
		Err:        ErrThrottled,
	}

	if !errors.Is(apiErr, ErrThrottled) {
		t.Error("errors.Is should find the wrapped sentinel")
	}

	var target *APIError
	if !errors.As(fmt.Errorf("outer: %w", apiErr), &target) {
		t.Fatal("errors.As should find the APIError")
	}
	if target.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", target.StatusCode)
	}
}

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"firststar_hateno", true},
		{"a-b", true},
		{"ab", true},
		{"a", false},
		{"1abc", false},
		{"", false},
		{"../etc", false},
		{"user name", false},
		{"abcdefghijabcdefghijabcdefghijabc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidUsername(tt.name); got != tt.expected {
				t.Errorf("ValidUsername(%q) = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
}
