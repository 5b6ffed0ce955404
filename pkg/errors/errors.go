// Package errors provides structured error types for regionkit.
//
// Coded errors let the CLI and the HTTP API report the same failure the
// same way: the code is machine-readable, the message is shown to users.
//
// # Error Codes
//
//   - CONFIG_*: pipeline setup problems, always fatal
//   - DATA_*: malformed input datasets
//   - NOT_FOUND: missing runs or files
//   - INTERNAL_ERROR, UNSUPPORTED: everything else
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfigInvalidValue, "stage %d: unknown merger %q", n, name)
//	if errors.Is(err, errors.ErrCodeConfigInvalidValue) {
//	    // report and exit
//	}
//
//	err := errors.Wrap(errors.ErrCodeDataInvalid, origErr, "read zones %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors
	ErrCodeConfigInvalidValue Code = "CONFIG_INVALID_VALUE"
	ErrCodeConfigUnresolved   Code = "CONFIG_UNRESOLVED"
	ErrCodeConfigMissing      Code = "CONFIG_MISSING"
	ErrCodeConfigMalformed    Code = "CONFIG_MALFORMED"

	// Data errors
	ErrCodeDataInvalid Code = "DATA_INVALID"
	ErrCodeDataPreset  Code = "DATA_PRESET"

	// Request validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidMode   Code = "INVALID_MODE"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeRunNotFound  Code = "RUN_NOT_FOUND"

	// Throttling errors
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
	ErrCodeCancelled   Code = "CANCELLED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsConfig reports whether err carries one of the CONFIG_* codes or
// UNSUPPORTED.
func IsConfig(err error) bool {
	switch GetCode(err) {
	case ErrCodeConfigInvalidValue, ErrCodeConfigUnresolved, ErrCodeConfigMissing,
		ErrCodeConfigMalformed, ErrCodeUnsupported:
		return true
	}
	return false
}

// HTTPStatus maps an error code to the HTTP status the API answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeConfigInvalidValue, ErrCodeConfigUnresolved, ErrCodeConfigMissing,
		ErrCodeConfigMalformed, ErrCodeDataInvalid, ErrCodeInvalidInput,
		ErrCodeInvalidFormat, ErrCodeInvalidMode, ErrCodeInvalidPath:
		return 400
	case ErrCodeNotFound, ErrCodeFileNotFound, ErrCodeRunNotFound:
		return 404
	case ErrCodeUnsupported:
		return 422
	case ErrCodeRateLimited:
		return 429
	case ErrCodeCancelled:
		return 499
	}
	return 500
}
