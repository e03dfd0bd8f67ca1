// Package validation holds the input checks shared by configuration loading,
// the path table and the dev server.
package validation

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidateProjectPath rejects paths that would escape the project root:
// absolute paths, parent traversal and shell metacharacters.
func ValidateProjectPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path cannot be empty")
	}

	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return fmt.Errorf("path must be relative to the project root: %s", p)
	}

	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path traversal detected: %s", p)
	}

	if strings.ContainsAny(p, ";&|$`<>") {
		return fmt.Errorf("path contains dangerous character: %s", p)
	}

	return nil
}

// ValidateGlob checks that pattern is a well-formed doublestar pattern rooted
// inside the project.
func ValidateGlob(pattern string) error {
	if err := ValidateProjectPath(pattern); err != nil {
		return err
	}

	if !doublestar.ValidatePattern(NormalizeGlob(pattern)) {
		return fmt.Errorf("malformed glob pattern: %s", pattern)
	}

	return nil
}

// NormalizeGlob converts a configured pattern into the slash separated,
// "./"-free form understood by io/fs based matching.
func NormalizeGlob(pattern string) string {
	p := filepath.ToSlash(pattern)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// NormalizeDir cleans a configured directory into slash form. The project
// root is returned as ".".
func NormalizeDir(dir string) string {
	return path.Clean(NormalizeGlob(dir))
}
