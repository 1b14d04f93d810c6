package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxRelationshipDepth bounds relationship queries.
const MaxRelationshipDepth = 5

// packIDRegex matches pack directory names.
var packIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidatePackID validates a pack identifier for safety and correctness.
// Pack ids are directory names under Packs/, so path components are rejected.
func ValidatePackID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidPackID, "pack id cannot be empty")
	}

	if len(id) > 256 {
		return New(ErrCodeInvalidPackID, "pack id too long (max 256 characters)")
	}

	if strings.Contains(id, "..") {
		return New(ErrCodeInvalidPackID, "pack id contains invalid characters: %q", "..")
	}

	if !packIDRegex.MatchString(id) {
		return New(ErrCodeInvalidPackID, "invalid pack id: %q", id)
	}

	return nil
}

// ValidatePath validates a file path within a repository for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	// Check for null bytes and control characters
	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	// Must not be absolute path
	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	// Check for path traversal
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	// No backslashes (potential Windows path injection)
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateDepth checks a relationship query depth.
func ValidateDepth(depth int) error {
	if depth < 1 || depth > MaxRelationshipDepth {
		return New(ErrCodeInvalidDepth, "depth must be between 1 and %d, got %d", MaxRelationshipDepth, depth)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
