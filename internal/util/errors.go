// Package util provides utility functions and types for the API Gateway.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrUnavailable.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, ServiceError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// Errors never leave the gateway as Go strings. The pipeline maps them
// onto an Envelope with one of the Code values defined in envelope.go.
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrUnavailable   = errors.New("service unavailable")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ServiceError represents a failure talking to a downstream service.
type ServiceError struct {
	Service string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("service %s: %s: %v", e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("service %s: %s", e.Service, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ServiceError) Is(target error) bool {
	_, ok := target.(*ServiceError)
	return ok || errors.Is(e.Cause, target)
}

// NewServiceError creates a new ServiceError with a cause.
func NewServiceError(service, message string, cause error) *ServiceError {
	return &ServiceError{Service: service, Message: message, Cause: cause}
}

// JoinConfigErrors flattens a list of config errors into one error, or nil.
func JoinConfigErrors(errs []*ConfigError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(errs))
	for _, e := range errs {
		joined = append(joined, e)
	}
	return errors.Join(joined...)
}
