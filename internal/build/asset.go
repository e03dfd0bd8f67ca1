// Package build runs the transform chain of an asset class over every file
// its source glob matches and writes the declared outputs under the class
// destination.
package build

import (
	"context"
	"path"
	"strings"
)

// Asset is the value flowing through a chain.
type Asset struct {
	// Source is the project-relative path of the originating file.
	Source string
	// Rel is the output path relative to the class destination.
	Rel string
	// Content is the current file body.
	Content []byte
	// Map is the source map of Content, if the last transform produced one.
	Map []byte
}

// TransformFunc maps one asset to another. It must not touch the filesystem
// outside of reading imports next to the source.
type TransformFunc func(ctx context.Context, a Asset) (Asset, error)

type stepKind int

const (
	stepTransform stepKind = iota
	stepRename
	stepWrite
)

// Step is one element of a Chain.
type Step struct {
	kind    stepKind
	name    string
	fn      TransformFunc
	rename  func(rel string) string
	withMap bool
	cached  bool
}

// Name returns the collaborator name reported in errors.
func (s Step) Name() string { return s.name }

// Chain is the ordered list of steps of a class.
type Chain []Step

// Transform wraps a collaborator call.
func Transform(name string, fn TransformFunc) Step {
	return Step{kind: stepTransform, name: name, fn: fn}
}

// Cached wraps a collaborator call whose output is stored in the content
// cache. Only Content survives a cache hit, so fn must not produce a map.
func Cached(name string, fn TransformFunc) Step {
	return Step{kind: stepTransform, name: name, fn: fn, cached: true}
}

// Rename changes the output path of the asset.
func Rename(fn func(rel string) string) Step {
	return Step{kind: stepRename, name: "rename", rename: fn}
}

// RenameBase replaces the file name and keeps the directory.
func RenameBase(base string) Step {
	return Rename(func(rel string) string {
		return path.Join(path.Dir(rel), base)
	})
}

// RenameSuffix inserts suffix before the extension: style.css becomes
// style.min.css.
func RenameSuffix(suffix string) Step {
	return Rename(func(rel string) string {
		ext := path.Ext(rel)
		return strings.TrimSuffix(rel, ext) + suffix + ext
	})
}

// Write declares the current asset as an output.
func Write() Step {
	return Step{kind: stepWrite, name: "write"}
}

// WriteWithMap declares the current asset as an output together with a .map
// sibling, and appends a sourceMappingURL comment pointing to it.
func WriteWithMap() Step {
	return Step{kind: stepWrite, name: "write", withMap: true}
}

// output is a file produced by a chain, not yet on disk.
type output struct {
	rel     string
	content []byte
}

// mapComment returns the sourceMappingURL trailer for a file of the given
// extension.
func mapComment(rel string) string {
	name := path.Base(rel) + ".map"
	if path.Ext(rel) == ".css" {
		return "\n/*# sourceMappingURL=" + name + " */\n"
	}
	return "\n//# sourceMappingURL=" + name + "\n"
}

func (s Step) outputs(a Asset) []output {
	if !s.withMap || len(a.Map) == 0 {
		return []output{{rel: a.Rel, content: a.Content}}
	}

	body := make([]byte, 0, len(a.Content)+64)
	body = append(body, strings.TrimRight(string(a.Content), "\n")...)
	body = append(body, mapComment(a.Rel)...)

	return []output{
		{rel: a.Rel, content: body},
		{rel: a.Rel + ".map", content: a.Map},
	}
}
