package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// maxIDLength bounds zone, region and run identifiers.
const maxIDLength = 256

// ValidateZoneID rejects empty identifiers, identifiers with control
// characters, and overly long ones.
func ValidateZoneID(id string) error {
	if id == "" {
		return New(ErrCodeDataInvalid, "zone ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return New(ErrCodeDataInvalid, "zone ID too long (max %d characters)", maxIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeDataInvalid, "zone ID %q contains control characters", id)
		}
	}
	return nil
}

// runIDRegex matches the UUIDs handed out as run IDs.
var runIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateRunID validates a run ID before it is used as a store key or
// file name.
func ValidateRunID(id string) error {
	if !runIDRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid run ID: %q", id)
	}
	return nil
}

// setupExtensions lists the file extensions a pipeline setup may have.
var setupExtensions = []string{".toml", ".yaml", ".yml"}

// ValidateSetupFilename checks that a setup file has a known extension.
func ValidateSetupFilename(name string) error {
	if name == "" {
		return New(ErrCodeConfigMissing, "setup file name cannot be empty")
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range setupExtensions {
		if ext == e {
			return nil
		}
	}
	return New(ErrCodeConfigMalformed, "setup file %q must end in one of: %s", name, strings.Join(setupExtensions, ", "))
}

// ValidatePercent checks that a ratio given in percent lies in [0, 100].
func ValidatePercent(field string, v float64) error {
	if v < 0 || v > 100 {
		return New(ErrCodeConfigInvalidValue, "%s: %g is not a percentage (must be between 0 and 100)", field, v)
	}
	return nil
}

// ValidatePath validates a relative path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - No absolute paths
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}
	return nil
}
