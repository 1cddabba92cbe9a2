// Package errors provides structured error types for zeromv.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the pipeline and the HTTP API
//   - Machine-readable error codes for exit status and HTTP status mapping
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes mirror the failure taxonomy of a run:
//   - CONFIG_ERROR: required input missing or invalid, raised before any heavy work
//   - BACKEND_ERROR: the upstream generation backend failed
//   - GEOMETRY_MISMATCH: a composite could not be split into six tiles (strict mode only)
//   - NO_IMAGES, INCONSISTENT_TILE_SIZE: contact sheet composition failures
//   - STORAGE_ERROR: directory creation or artifact write failed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfig, "provide --image or config:image")
//	if errors.Is(err, errors.ErrCodeConfig) {
//	    // exit before touching the backend
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "write %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input errors
	ErrCodeConfig       Code = "CONFIG_ERROR"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"

	// Generation errors
	ErrCodeBackend  Code = "BACKEND_ERROR"
	ErrCodeGeometry Code = "GEOMETRY_MISMATCH"

	// Contact sheet errors
	ErrCodeNoImages             Code = "NO_IMAGES"
	ErrCodeInconsistentTileSize Code = "INCONSISTENT_TILE_SIZE"
	ErrCodeSheetTooLarge        Code = "SHEET_TOO_LARGE"

	// Output errors
	ErrCodeStorage Code = "STORAGE_ERROR"
	ErrCodeUpload  Code = "UPLOAD_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
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
// The outermost *Error in the chain decides.
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
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsSheetError reports whether err is a contact sheet composition failure.
func IsSheetError(err error) bool {
	switch GetCode(err) {
	case ErrCodeNoImages, ErrCodeInconsistentTileSize, ErrCodeSheetTooLarge:
		return true
	}
	return false
}

// IsFatal reports whether err must abort a run. Sheet and upload failures
// degrade the result instead.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if IsSheetError(err) || Is(err, ErrCodeUpload) {
		return false
	}
	return true
}
