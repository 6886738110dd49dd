package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common error codes
const (
	ErrorCodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	ErrorCodeBadRequest   = "BAD_REQUEST"
	ErrorCodeServerError  = "SERVER_ERROR"
	ErrorCodeNetworkError = "NETWORK_ERROR"
	ErrorCodeParseError   = "PARSE_ERROR"
	ErrorCodeAPIError     = "API_ERROR"
)

// ArgumentError reports bad or empty input.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return "invalid argument: " + e.Message
}

func NewArgumentError(format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Message: fmt.Sprintf(format, args...)}
}

// InvalidDateError reports a timestamp that is not a valid YYYYMMDDHHMMSS value.
type InvalidDateError struct {
	Ts  int64
	Err error
}

func (e *InvalidDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid date %d: %v", e.Ts, e.Err)
	}
	return fmt.Sprintf("invalid date %d", e.Ts)
}

func (e *InvalidDateError) Unwrap() error {
	return e.Err
}

// ProviderError represents an error from an external price source
type ProviderError struct {
	Provider  string    `json:"provider"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

func (pe *ProviderError) Error() string {
	return pe.Provider + ": " + pe.Message
}

func (pe *ProviderError) Unwrap() error {
	return pe.Err
}

// IsRetryable returns whether the error is retryable
func (pe *ProviderError) IsRetryable() bool {
	return pe.Retryable
}

// CommunicationError is a transport-level failure talking to a source.
// A higher layer may retry it.
type CommunicationError struct {
	*ProviderError
}

// NewCommunicationError creates a retryable source error.
func NewCommunicationError(provider, code, message string, err error) *CommunicationError {
	return &CommunicationError{ProviderError: &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: true,
		Timestamp: time.Now(),
		Err:       err,
	}}
}

// BrokenAPIError means the source answered but broke its contract.
type BrokenAPIError struct {
	*ProviderError
}

// NewBrokenAPIError creates a non-retryable source error.
func NewBrokenAPIError(provider, code, message string) *BrokenAPIError {
	return &BrokenAPIError{ProviderError: &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now(),
	}}
}

// ConfigurationError is raised while building a loader whose required settings are missing.
type ConfigurationError struct {
	Source  string
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error for %s: %s is required", e.Source, e.Setting)
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	return msg
}

// LoaderError tags a loader failure with its source id.
type LoaderError struct {
	SourceID string
	Err      error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader %s: %v", e.SourceID, e.Err)
}

func (e *LoaderError) Unwrap() error {
	return e.Err
}

// AggregateError carries every per-source failure of one request.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d source(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Sources returns the ids of the failed sources, in error order.
func (e *AggregateError) Sources() []string {
	var ids []string
	for _, err := range e.Errors {
		var le *LoaderError
		if errors.As(err, &le) {
			ids = append(ids, le.SourceID)
		}
	}
	return ids
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	var argErr *ArgumentError
	var dateErr *InvalidDateError
	return errors.As(err, &argErr) || errors.As(err, &dateErr)
}

// ErrorKind names the category of a source error for logs and metrics.
func ErrorKind(err error) string {
	var commErr *CommunicationError
	var brokenErr *BrokenAPIError
	switch {
	case errors.As(err, &brokenErr):
		return "broken_api"
	case errors.As(err, &commErr):
		return "communication"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
