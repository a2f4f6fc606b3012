// Package errors provides a structured error system for tiercache with error codes, categories, and context.
//
// Cache lookups never surface these errors: a fault inside a tier degrades to a
// miss. They describe construction-time programmer errors returned to callers and
// the internal failures the tiers log before swallowing them.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Serialization errors
	ErrCodeSerialization   ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION_FAILED"
	ErrCodeValueTooLarge   ErrorCode = "VALUE_TOO_LARGE"

	// Storage errors
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeMetadataWrite  ErrorCode = "STORAGE_METADATA"
	ErrCodeCacheCorrupted ErrorCode = "CACHE_CORRUPTED"

	// State errors
	ErrCodeComponentStopped ErrorCode = "COMPONENT_STOPPED"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySerialization ErrorCategory = "serialization"
	CategoryStorage       ErrorCategory = "storage"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// NewError creates a new cache error with default values.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// Wrap creates a new cache error around cause.
func Wrap(code ErrorCode, message string, cause error) *CacheError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "SERIALIZATION_") || strings.HasPrefix(codeStr, "DESERIALIZATION_") ||
		strings.HasPrefix(codeStr, "VALUE_"):
		return CategorySerialization
	case strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "CACHE_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "COMPONENT_"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// HasCode reports whether any error in err's chain is a CacheError with code.
func HasCode(err error, code ErrorCode) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code == code
	}
	return false
}

// HasCategory reports whether any error in err's chain is a CacheError in category.
func HasCategory(err error, category ErrorCategory) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Category == category
	}
	return false
}

// WithDetail adds detailed information to an error
func (e *CacheError) WithDetail(key string, value interface{}) *CacheError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *CacheError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeInvalidConfig: "Check the configuration file syntax and required parameters.",
		ErrCodeConfigValidation: "A configuration value is out of range. " +
			"Sizes and entry limits must not be negative.",
		ErrCodeConfigLoad:     "The configuration file could not be read or parsed.",
		ErrCodeSerialization:  "The value cannot be encoded by the configured codec; it stays memory-only.",
		ErrCodeStorageWrite:   "Check free disk space and permissions on the cache directory.",
		ErrCodeStorageRead:    "The cached blob was unreadable and has been discarded.",
		ErrCodeCacheCorrupted: "The cached blob failed to decode and has been discarded.",
		ErrCodeValueTooLarge:  "The value is larger than the whole file tier budget; raise file_max_size or keep it memory-only.",
		ErrCodeMetadataWrite:  "The metadata file could not be rewritten; check free disk space on the cache directory.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}
