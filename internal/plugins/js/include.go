package js

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// directive matches "//= include path" and "//= require path" lines. The
// path may be quoted and may be a glob.
var directive = regexp.MustCompile(`^(\s*)//=\s*(include|require)\s+["']?([^"'\s]+)["']?\s*$`)

type expander struct {
	required map[string]bool
}

// Expand returns content with every directive replaced by the referenced
// files, recursively. file is the absolute path content was read from.
// require inlines a file at most once per expansion; include always does.
// A file including itself, directly or not, is an error.
func Expand(file string, content []byte) ([]byte, error) {
	e := &expander{required: make(map[string]bool)}
	return e.expand(file, content, []string{file})
}

func (e *expander) expand(file string, content []byte, stack []string) ([]byte, error) {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		m := directive.FindStringSubmatch(text)
		if m == nil {
			out.WriteString(text)
			out.WriteByte('\n')
			continue
		}

		indent, verb, target := m[1], m[2], m[3]
		files, err := resolve(filepath.Dir(file), target)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(file), line, err)
		}

		for _, inc := range files {
			if contains(stack, inc) {
				return nil, fmt.Errorf("%s:%d: include cycle through %s", filepath.Base(file), line, filepath.Base(inc))
			}
			if verb == "require" {
				if e.required[inc] {
					continue
				}
				e.required[inc] = true
			}

			data, err := os.ReadFile(inc)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filepath.Base(file), line, err)
			}
			expanded, err := e.expand(inc, data, append(stack, inc))
			if err != nil {
				return nil, err
			}
			for _, l := range bytes.SplitAfter(expanded, []byte("\n")) {
				if len(l) == 0 {
					continue
				}
				out.WriteString(indent)
				out.Write(l)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// resolve expands target relative to dir. Plain paths must exist; globs may
// match nothing.
func resolve(dir, target string) ([]string, error) {
	target = filepath.ToSlash(target)
	if filepath.Ext(target) == "" && !hasMeta(target) {
		target += ".js"
	}

	if !hasMeta(target) {
		full := filepath.Join(dir, filepath.FromSlash(target))
		if _, err := os.Stat(full); err != nil {
			return nil, fmt.Errorf("cannot include %s: %w", target, err)
		}
		return []string{full}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), target, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern %s: %w", target, err)
	}
	sort.Strings(matches)

	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return files, nil
}

func hasMeta(p string) bool {
	return bytes.ContainsAny([]byte(p), "*?[{")
}

func contains(stack []string, file string) bool {
	for _, s := range stack {
		if s == file {
			return true
		}
	}
	return false
}
