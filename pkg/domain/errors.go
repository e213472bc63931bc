package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode tags a ProviderError with its failure class.
type ErrorCode string

const (
	// ErrCircuitOpen means the breaker refused the call without network I/O.
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrRateLimited means the vendor explicitly signaled throttling (HTTP 429).
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrProviderFailed is a generic vendor/network/timeout failure.
	ErrProviderFailed ErrorCode = "PROVIDER_FAILED"
	// ErrInvalidResponse means the vendor answered but the payload is unusable.
	ErrInvalidResponse ErrorCode = "INVALID_RESPONSE"
	// ErrAllProvidersFailed means every tier, including stale cache, is exhausted.
	ErrAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
)

// Attempt records the outcome of one retry attempt.
type Attempt struct {
	Number  int           `json:"number"`
	Error   string        `json:"error"`
	Elapsed time.Duration `json:"elapsed"`
}

// ProviderError is the single tagged error type this layer surfaces.
type ProviderError struct {
	Code     ErrorCode
	Provider string
	Op       string
	Message  string
	Attempts []Attempt
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a tagged error with a formatted message.
func NewProviderError(code ErrorCode, provider string, format string, args ...any) *ProviderError {
	return &ProviderError{
		Code:     code,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the ErrorCode from err, or "" when err is not a ProviderError.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
