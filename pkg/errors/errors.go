package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrExternal indicates an upstream service returned an error
	ErrExternal = errors.New("external service error")
)

// Reasoning-port errors
//
// Timeout, RateLimited and UpstreamUnavailable are transient and retried
// with backoff. InvalidOutput is retried with a reformulated prompt up to a
// small bound, then fatal for the owning cycle.

var (
	// ErrReasoningTimeout indicates a reasoning call exceeded its deadline
	ErrReasoningTimeout = errors.New("reasoning call timed out")

	// ErrRateLimited indicates the reasoning backend rejected the call due to rate limits
	ErrRateLimited = errors.New("reasoning backend rate limited")

	// ErrUpstreamUnavailable indicates the reasoning backend is unavailable
	ErrUpstreamUnavailable = errors.New("reasoning backend unavailable")

	// ErrInvalidOutput indicates structured output failed schema validation
	ErrInvalidOutput = errors.New("invalid structured output")
)

// Market/execution-port errors

var (
	// ErrMarketUnavailable indicates the market data or broker API is unreachable
	ErrMarketUnavailable = errors.New("market service unavailable")

	// ErrOrderRejected indicates the broker definitively rejected an order
	ErrOrderRejected = errors.New("order rejected by broker")

	// ErrAlreadySubmitted indicates an order was already submitted for a proposal
	ErrAlreadySubmitted = errors.New("proposal already submitted for execution")

	// ErrSnapshotStale indicates no usable price snapshot exists for a ticker
	ErrSnapshotStale = errors.New("no usable price snapshot")
)

// Workflow errors

var (
	// ErrCycleInFlight indicates a cycle for the ticker is already running
	ErrCycleInFlight = errors.New("cycle already in flight for ticker")

	// ErrStageDeadline indicates a stage exceeded its total deadline
	ErrStageDeadline = errors.New("stage deadline exceeded")

	// ErrRetryBudget indicates the bounded attempt count was exhausted
	ErrRetryBudget = errors.New("retry budget exhausted")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details.
// It unwraps to ErrInvalidOutput so retry classification sees schema
// failures uniformly.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns ErrInvalidOutput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidOutput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns a new error with the given text
func New(text string) error {
	return errors.New(text)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsTransient reports whether err is a transient reasoning/market failure
// that should be retried with backoff.
func IsTransient(err error) bool {
	return Is(err, ErrReasoningTimeout) ||
		Is(err, ErrRateLimited) ||
		Is(err, ErrUpstreamUnavailable) ||
		Is(err, ErrMarketUnavailable)
}
