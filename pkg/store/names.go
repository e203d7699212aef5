package store

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// ForbiddenChars lists the characters that may not appear in a file name.
	ForbiddenChars = `\/:"*?<>|`

	// MaxNameLength is the maximum length of a file name in bytes.
	MaxNameLength = 255

	// TempPrefix marks in-progress uploads in backends that stage data next
	// to committed files. Names with this prefix are reserved.
	TempPrefix = ".filesrv-upload-"
)

// ValidateName checks that name can be used as a flat file name.
//
// Rejected names:
//   - empty, "." or ".."
//   - longer than MaxNameLength bytes
//   - containing any of ForbiddenChars or a control character (a line break
//     would corrupt the header framing)
//   - with leading or trailing whitespace (headers are right-trimmed on decode)
//   - starting with TempPrefix
//
// Returns an error wrapping ErrInvalidName, or nil.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("name %q: %w", name, ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("name longer than %d bytes: %w", MaxNameLength, ErrInvalidName)
	case strings.ContainsAny(name, ForbiddenChars):
		return fmt.Errorf("name %q contains forbidden characters: %w", name, ErrInvalidName)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("name %q contains control characters: %w", name, ErrInvalidName)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("name %q has surrounding whitespace: %w", name, ErrInvalidName)
	case strings.HasPrefix(name, TempPrefix):
		return fmt.Errorf("name %q uses a reserved prefix: %w", name, ErrInvalidName)
	}
	return nil
}

// HasForbiddenChars reports whether name contains any of ForbiddenChars.
func HasForbiddenChars(name string) bool {
	return strings.ContainsAny(name, ForbiddenChars)
}
