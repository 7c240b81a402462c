// Package errors provides a lightweight structured error type (DevilDexError)
// for category-based classification and retry semantics across the scheduler,
// adapters and HTTP surface.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a DevilDex error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryScanInput  ErrorCategory = "scan_input"

	// External system integration errors
	CategoryNetwork ErrorCategory = "network"
	CategoryFetch   ErrorCategory = "fetch"
	CategoryAdapter ErrorCategory = "adapter"

	// Build and storage errors
	CategoryRegistry   ErrorCategory = "registry"
	CategoryScheduler  ErrorCategory = "scheduler"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DevilDexError is a structured error with category, retryability, and context
type DevilDexError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DevilDexError
type ContextFields map[string]any

// Error implements the error interface
func (e *DevilDexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DevilDexError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DevilDexError) WithContext(key string, value any) *DevilDexError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DevilDexError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DevilDexError {
	return &DevilDexError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new DevilDexError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DevilDexError {
	return &DevilDexError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// WrapRetryable creates a new retryable DevilDexError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *DevilDexError {
	return &DevilDexError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dde, ok := err.(*DevilDexError); ok {
		return dde.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if dde, ok := err.(*DevilDexError); ok {
		return dde.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a DevilDexError
func GetCategory(err error) ErrorCategory {
	if dde, ok := err.(*DevilDexError); ok {
		return dde.Category
	}
	return CategoryInternal
}
