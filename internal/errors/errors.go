// Package errors provides structured error types for the PALS entry runtime.
// All errors include a category, code, message, and retryable flag so the
// hosting surfaces can map failures consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the stage that detected them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryConversion ErrorCategory = "CONVERSION"
	ErrCategoryModel      ErrorCategory = "MODEL"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeNullInput                  = "NULL_INPUT"
	CodeUnrecognizedExtractionType = "UNRECOGNIZED_EXTRACTION_TYPE"
	CodeInvalidTimestamp           = "INVALID_TIMESTAMP"
	CodeInvalidFilter              = "INVALID_FILTER"

	// Conversion codes
	CodeUnsupportedConversion = "UNSUPPORTED_CONVERSION"
	CodeUnknownTagKey         = "UNKNOWN_TAG_KEY"
	CodeMisalignedColumn      = "MISALIGNED_COLUMN"
	CodeReservedColumn        = "RESERVED_COLUMN_NAME"

	// Model codes
	CodeModelLoadFailed   = "MODEL_LOAD_FAILED"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"

	// Storage codes
	CodeUploadFailed = "UPLOAD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels usable as errors.Is targets. Matching is by category and code.
var (
	ErrNullInput                  = New(ErrCategoryValidation, CodeNullInput, "input cannot be nil")
	ErrUnrecognizedExtractionType = New(ErrCategoryValidation, CodeUnrecognizedExtractionType, "extraction type not recognized")
	ErrInvalidTimestamp           = New(ErrCategoryValidation, CodeInvalidTimestamp, "invalid timestamp")
	ErrInvalidFilter              = New(ErrCategoryValidation, CodeInvalidFilter, "invalid filter")
	ErrUnsupportedConversion      = New(ErrCategoryConversion, CodeUnsupportedConversion, "unsupported conversion")
	ErrUnknownTagKey              = New(ErrCategoryConversion, CodeUnknownTagKey, "unknown tag key")
	ErrMisalignedColumn           = New(ErrCategoryConversion, CodeMisalignedColumn, "column misaligned with timestamps")
	ErrReservedColumn             = New(ErrCategoryConversion, CodeReservedColumn, "tag name collides with a reserved column")
	ErrModelLoad                  = New(ErrCategoryModel, CodeModelLoadFailed, "model load failed")
	ErrDimensionMismatch          = New(ErrCategoryModel, CodeDimensionMismatch, "dimension mismatch")
	ErrUpload                     = New(ErrCategoryStorage, CodeUploadFailed, "upload failed")
)

// PalsError is the structured error type used throughout the runtime.
type PalsError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PalsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PalsError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PalsError) Is(target error) bool {
	var t *PalsError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PalsError.
func New(category ErrorCategory, code, message string) *PalsError {
	return &PalsError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PalsError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PalsError {
	return &PalsError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PalsError) WithDetails(details map[string]interface{}) *PalsError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PalsError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PalsError.
func GetCategory(err error) ErrorCategory {
	var pe *PalsError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PalsError.
func GetCode(err error) string {
	var pe *PalsError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Upload failures are the only transient kind; everything else is a caller
// or deployment problem that will fail the same way on retry.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeUploadFailed
}

// Convenience constructors for common errors.
func NewValidationError(code, message string) *PalsError {
	return New(ErrCategoryValidation, code, message)
}

func NewConversionError(code, message string) *PalsError {
	return New(ErrCategoryConversion, code, message)
}

func NewModelError(code, message string, cause error) *PalsError {
	return Wrap(ErrCategoryModel, code, message, cause)
}

func NewUploadError(message string, cause error) *PalsError {
	return Wrap(ErrCategoryStorage, CodeUploadFailed, message, cause)
}

func NewInternalError(message string, cause error) *PalsError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
