package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityUnsupported marks a capability the backend has no model
	// for. The routing layer treats it as "skip this candidate", never as
	// a failure.
	ErrCapabilityUnsupported = errors.New("capability not supported")

	// ErrProviderNotFound is returned when a provider type is not registered.
	ErrProviderNotFound = errors.New("provider not registered")

	// ErrInvalidConfig is returned for bad registration input. It fails
	// fast at register time and never reaches request handling.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// Error codes carried by ProviderError.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnauthenticated = "unauthenticated"
	CodeRateLimited     = "rate_limited"
	CodeTimeout         = "timeout"
	CodeUpstream        = "upstream_error"
	CodeUnavailable     = "unavailable"
)

// ProviderError is a failure attributed to one concrete backend. Retryable
// errors (network faults, rate limits, 5xx) are eligible for fallback to the
// next candidate; caller faults and auth failures are not.
type ProviderError struct {
	Provider   ProviderType
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider ProviderType, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewUnsupportedError marks a capability this provider cannot serve.
func NewUnsupportedError(provider ProviderType, c Capability) error {
	return fmt.Errorf("%s does not serve %s: %w", provider, c, ErrCapabilityUnsupported)
}

// NewInvalidRequestError marks a caller fault; it is never retried against
// another backend.
func NewInvalidRequestError(provider ProviderType, message string) *ProviderError {
	return NewProviderError(provider, CodeInvalidRequest, message, 400, false, nil)
}

// IsUnsupported reports whether err means the capability is not served.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrCapabilityUnsupported)
}

// IsRetryable reports whether err is eligible for fallback.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
