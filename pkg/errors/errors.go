// Package errors provides structured error types for the content graph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the HTTP API
//   - Machine-readable error codes for programmatic handling
//   - A split between fatal failures and recoverable ones
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - *_NOT_FOUND: Resource not found
//   - SNAPSHOT, PACK_METADATA: recoverable build and import failures
//   - STORE, REFERENTIAL_ORDER: fatal failures of the backing store or a build batch
//
// Parse-skips are not errors; see package parsers.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidMarketplace, "unknown marketplace: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidMarketplace) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSnapshot, origErr, "download %s", marketplace)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput        Code = "INVALID_INPUT"
	ErrCodeInvalidPath         Code = "INVALID_PATH"
	ErrCodeInvalidMarketplace  Code = "INVALID_MARKETPLACE"
	ErrCodeInvalidContentType  Code = "INVALID_CONTENT_TYPE"
	ErrCodeInvalidRelationship Code = "INVALID_RELATIONSHIP"
	ErrCodeInvalidDepth        Code = "INVALID_DEPTH"
	ErrCodeInvalidPackID       Code = "INVALID_PACK_ID"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodePackNotFound Code = "PACK_NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Recoverable build and import errors
	ErrCodePackMetadata Code = "PACK_METADATA"
	ErrCodeSnapshot     Code = "SNAPSHOT"
	ErrCodeGit          Code = "GIT"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Fatal errors
	ErrCodeStore            Code = "STORE"
	ErrCodeReferentialOrder Code = "REFERENTIAL_ORDER"

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
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
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

// IsFatal reports whether err must abort a build rather than trigger a fallback.
// Store failures and referential-order violations are fatal.
func IsFatal(err error) bool {
	return Is(err, ErrCodeStore) || Is(err, ErrCodeReferentialOrder)
}
