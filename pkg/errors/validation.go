package errors

import (
	"strings"
	"unicode"
)

// maxBaseNameLength bounds run directory names.
const maxBaseNameLength = 200

// ValidateBaseName validates a run base name for use as a directory and file
// name component. It rejects names that could escape the output root.
//
// Validation rules:
//   - Name cannot be empty, "." or ".."
//   - Maximum length of 200 characters
//   - No control characters or null bytes
//   - No path separators (forward or back slash)
func ValidateBaseName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "base name cannot be empty")
	}
	if name == "." || name == ".." {
		return New(ErrCodeInvalidPath, "base name cannot be %q", name)
	}
	if len(name) > maxBaseNameLength {
		return New(ErrCodeInvalidPath, "base name too long (max %d characters)", maxBaseNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "base name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "base name cannot contain path separators")
	}

	return nil
}

// ValidateArtifactName validates a file name requested from a run directory.
// It must be a plain base name with a known artifact extension.
func ValidateArtifactName(name string) error {
	if err := ValidateBaseName(name); err != nil {
		return New(ErrCodeInvalidPath, "invalid artifact name %q", name)
	}
	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "artifact name cannot be a hidden file")
	}
	if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".json") {
		return New(ErrCodeInvalidPath, "artifact name must end in .png or .json")
	}
	return nil
}
