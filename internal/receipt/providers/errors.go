package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for receipt providers.
//
// Fetchers, renderers and extractors classify their failures with these categories
// so the retry executor and the pipeline make the same decision regardless of which
// bank or which tier produced the error.
type ErrorCategory string

const (
	// ErrorTimeout indicates the bank endpoint or the renderer took too long
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorNetwork indicates a transport failure (DNS, reset, refused)
	ErrorNetwork ErrorCategory = "network"

	// ErrorProviderOutage indicates the bank endpoint answered with a 5xx
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorRateLimited indicates the bank throttled us
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorRender indicates the pooled renderer could not find the document or table
	ErrorRender ErrorCategory = "render"

	// ErrorParse indicates the document did not yield the minimum field set
	ErrorParse ErrorCategory = "parse"

	// ErrorClient indicates an explicit 4xx rejection from the bank endpoint
	ErrorClient ErrorCategory = "client"

	// ErrorNotFound indicates the bank has no receipt for the reference
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorAuthentication indicates the endpoint demanded credentials
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorInvalidInput indicates the request was rejected before any I/O
	ErrorInvalidInput ErrorCategory = "invalid_input"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps provider failures with normalized categorization.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool // Set from Category by NewProviderError
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// IsRetryable lets the retry executor classify the error without importing this package.
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// IsClientError marks explicit rejections that must never be retried.
func (e *ProviderError) IsClientError() bool {
	switch e.Category {
	case ErrorClient, ErrorNotFound, ErrorAuthentication, ErrorInvalidInput:
		return true
	default:
		return false
	}
}

// NewProviderError creates a new normalized provider error with automatic retry classification.
//
// Transient failures (timeout, network, outage, rate-limited, render) are retryable. Parse
// failures are retryable too: a partially rendered page can produce an incomplete document,
// and a second attempt costs one more fetch. Client rejections are never retried.
func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorNetwork ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited ||
		category == ErrorRender ||
		category == ErrorParse

	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// UserMessage renders the human-readable reason carried by a failed VerifyResult.
// Provider IDs and wrapped transport details stay in the logs.
func UserMessage(err error) string {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return err.Error()
	}
	if pe.Underlying != nil && pe.Category == ErrorParse {
		return fmt.Sprintf("%s: %v", pe.Message, pe.Underlying)
	}
	return pe.Message
}

// Sentinel errors for registry-level failures.
var (
	ErrProviderNotFound  = errors.New("unsupported provider")
	ErrReferenceRequired = errors.New("reference required")
)
