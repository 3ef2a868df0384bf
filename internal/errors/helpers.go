package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewAuthError creates an authentication error. Never retryable:
// repeating a call with the same bad credentials cannot succeed.
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason)
}

// NewRateLimitError creates a retryable rate limit error for a 429
// response; the limiter's backoff runs before the retry.
func NewRateLimitError(url string) *AppError {
	appErr := New(ErrCodeRateLimit, "rate limit exceeded")
	appErr.Retryable = true
	return appErr.WithContext("url", url)
}

// NewNetworkError wraps a transport-level failure as retryable.
func NewNetworkError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNetwork, fmt.Sprintf("%s failed", operation)).
		WithContext("operation", operation)
}

// NewAPIError creates an error for a provider API response, retryable
// for status codes that indicate a transient condition.
func NewAPIError(endpoint string, statusCode int) *AppError {
	appErr := New(ErrCodeProviderAPI, fmt.Sprintf("provider API returned status %d", statusCode)).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode >= 500 || statusCode == 429 || statusCode == 408
	return appErr
}

// NewMalformedDataError creates an error for a single unparseable
// record; callers log and skip it without aborting the batch.
func NewMalformedDataError(recordID string, err error) *AppError {
	return Wrap(err, ErrCodeMalformedData, "failed to parse record").
		WithContext("record_id", recordID)
}

// NewMediaError creates a retryable media download error.
func NewMediaError(operation, filename string, err error) *AppError {
	return WrapRetryable(err, ErrCodeMediaDownload, fmt.Sprintf("media %s failed", operation)).
		WithContext("operation", operation).
		WithContext("filename", filename)
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field)
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewMissingConfigError reports an absent required configuration value.
func NewMissingConfigError(key string) *AppError {
	return New(ErrCodeMissingConfig, fmt.Sprintf("missing required configuration: %s", key)).
		WithContext("config_key", key)
}

// NewDatabaseError creates a store error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}
