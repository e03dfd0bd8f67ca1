package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind represents the category of a pipeline error.
type Kind string

const (
	// KindSourceNotFound marks a source glob that matched no files. It is a warning.
	KindSourceNotFound Kind = "source_not_found"
	// KindTransform marks a collaborator failure on a single file.
	KindTransform Kind = "transform"
	// KindWrite marks a destination file that could not be written.
	KindWrite Kind = "write"
	// KindClean marks a build root that could not be removed.
	KindClean Kind = "clean"
	// KindConfig marks an invalid path table or configuration value.
	KindConfig Kind = "config"
)

// AssetError is a structured error carrying the asset class, the file and the
// collaborator that produced it.
type AssetError struct {
	Kind         Kind
	Class        string
	File         string
	Collaborator string
	Message      string
	Cause        error
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Class != "" {
		parts = append(parts, "class:"+e.Class)
	}

	if e.Collaborator != "" {
		parts = append(parts, "via:"+e.Collaborator)
	}

	if e.File != "" {
		parts = append(parts, e.File)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AssetError of the same kind.
func (e *AssetError) Is(target error) bool {
	var t *AssetError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}

	return false
}

// Fatal reports whether the error must fail the enclosing task even though
// it was collected at file level.
func (e *AssetError) Fatal() bool {
	return e.Kind == KindClean || e.Kind == KindConfig
}

// NewSourceNotFound creates the warning reported when a glob matches nothing.
func NewSourceNotFound(class, glob string) *AssetError {
	return &AssetError{
		Kind:    KindSourceNotFound,
		Class:   class,
		Message: fmt.Sprintf("no files match %q", glob),
	}
}

// NewTransformError creates a per-file collaborator failure.
func NewTransformError(class, file, collaborator string, cause error) *AssetError {
	return &AssetError{
		Kind:         KindTransform,
		Class:        class,
		File:         file,
		Collaborator: collaborator,
		Message:      "transform failed",
		Cause:        cause,
	}
}

// NewWriteError creates a per-file destination failure.
func NewWriteError(class, file string, cause error) *AssetError {
	return &AssetError{
		Kind:    KindWrite,
		Class:   class,
		File:    file,
		Message: "cannot write output",
		Cause:   cause,
	}
}

// NewCleanError creates the error returned when the build root cannot be removed.
func NewCleanError(root string, cause error) *AssetError {
	return &AssetError{
		Kind:    KindClean,
		File:    root,
		Message: "cannot clean build root",
		Cause:   cause,
	}
}

// NewConfigError creates a path table or configuration error.
func NewConfigError(message string) *AssetError {
	return &AssetError{
		Kind:    KindConfig,
		Message: message,
	}
}

// IsKind reports whether any error in err's chain is an AssetError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AssetError
	if errors.As(err, &ae) {
		return ae.Kind == k
	}

	return false
}
