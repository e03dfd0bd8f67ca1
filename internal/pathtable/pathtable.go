// Package pathtable maps every asset class to its source glob, build
// destination and watch glob.
//
// A Table is built once at startup and never mutated afterwards, so it can be
// shared by concurrently running build tasks without locking. Construction
// validates the invariants the pipeline depends on:
//
//   - exactly one entry per asset class
//   - every destination lies inside the build root, so cleaning the root
//     removes every previous output
//   - destinations are pairwise disjoint, so parallel class builds never
//     write the same path
package pathtable

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/validation"
)

// AssetClass is one of the five managed asset categories.
type AssetClass int

const (
	HTML AssetClass = iota
	CSS
	JS
	Fonts
	Img
)

// Classes lists every asset class in build order.
var Classes = []AssetClass{HTML, CSS, JS, Fonts, Img}

// String returns the configuration key of the class.
func (c AssetClass) String() string {
	switch c {
	case HTML:
		return "html"
	case CSS:
		return "css"
	case JS:
		return "js"
	case Fonts:
		return "fonts"
	case Img:
		return "img"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// TaskName returns the name of the build task registered for the class.
func (c AssetClass) TaskName() string {
	if c == Img {
		return "image:build"
	}
	return c.String() + ":build"
}

var upper = cases.Upper(language.English)

// DisplayName returns the class name as shown in CLI summaries.
func (c AssetClass) DisplayName() string {
	return upper.String(c.String())
}

// ParseClass converts a configuration key into an AssetClass.
func ParseClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html":
		return HTML, nil
	case "css":
		return CSS, nil
	case "js":
		return JS, nil
	case "fonts":
		return Fonts, nil
	case "img", "image", "images":
		return Img, nil
	default:
		return 0, fmt.Errorf("unknown asset class %q", s)
	}
}

// PathSpec holds the paths of one asset class. Paths are slash separated and
// relative to the project root.
type PathSpec struct {
	SourceGlob string
	DestDir    string
	WatchGlob  string
}

// SourceBase returns the static directory prefix of the source glob. Output
// paths are computed relative to it.
func (p PathSpec) SourceBase() string {
	base, _ := doublestar.SplitPattern(p.SourceGlob)
	return base
}

// WatchBase returns the static directory prefix of the watch glob.
func (p PathSpec) WatchBase() string {
	base, _ := doublestar.SplitPattern(p.WatchGlob)
	return base
}

// Recursive reports whether source files, and therefore outputs, may live in
// subdirectories below the base.
func (p PathSpec) Recursive() bool {
	_, pattern := doublestar.SplitPattern(p.SourceGlob)
	return strings.Contains(pattern, "/") || strings.Contains(pattern, "**")
}

func (p PathSpec) normalize() PathSpec {
	spec := PathSpec{
		SourceGlob: validation.NormalizeGlob(p.SourceGlob),
		DestDir:    validation.NormalizeDir(p.DestDir),
		WatchGlob:  validation.NormalizeGlob(p.WatchGlob),
	}
	if spec.WatchGlob == "" {
		spec.WatchGlob = spec.SourceGlob
	}
	return spec
}

// Table is the immutable class to paths mapping.
type Table struct {
	buildRoot string
	specs     map[AssetClass]PathSpec
}

// New normalizes and validates specs and returns the resulting table.
func New(buildRoot string, specs map[AssetClass]PathSpec) (*Table, error) {
	t := &Table{
		buildRoot: validation.NormalizeDir(buildRoot),
		specs:     make(map[AssetClass]PathSpec, len(specs)),
	}
	for class, spec := range specs {
		t.specs[class] = spec.normalize()
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Default returns the table of the conventional project layout.
func Default() *Table {
	t, err := New("build", DefaultSpecs())
	if err != nil {
		panic(fmt.Sprintf("pathtable: default table is invalid: %v", err))
	}
	return t
}

// DefaultSpecs returns the conventional project layout.
func DefaultSpecs() map[AssetClass]PathSpec {
	return map[AssetClass]PathSpec{
		HTML: {
			SourceGlob: "src/html/pages/*.html",
			DestDir:    "build",
			WatchGlob:  "src/html/**/*.html",
		},
		JS: {
			SourceGlob: "src/scripts/main.js",
			DestDir:    "build/assets/js",
			WatchGlob:  "src/scripts/**/*.js",
		},
		CSS: {
			SourceGlob: "src/styles/main.pcss",
			DestDir:    "build/assets/css",
			WatchGlob:  "src/styles/**/*.pcss",
		},
		Img: {
			SourceGlob: "public/images/**/*.*",
			DestDir:    "build/assets/img",
			WatchGlob:  "public/images/**/*.*",
		},
		Fonts: {
			SourceGlob: "public/fonts/**/*.*",
			DestDir:    "build/assets/fonts",
			WatchGlob:  "public/fonts/**/*.*",
		},
	}
}

// BuildRoot returns the directory removed by the clean task.
func (t *Table) BuildRoot() string {
	return t.buildRoot
}

// Spec returns the paths of class.
func (t *Table) Spec(class AssetClass) (PathSpec, bool) {
	spec, ok := t.specs[class]
	return spec, ok
}

// Classes returns the classes present in the table in build order.
func (t *Table) Classes() []AssetClass {
	out := make([]AssetClass, 0, len(t.specs))
	for _, c := range Classes {
		if _, ok := t.specs[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks every table invariant and returns the first violation.
func (t *Table) Validate() error {
	if t.buildRoot == "." || t.buildRoot == "" {
		return errors.NewConfigError("build root must be a subdirectory of the project")
	}
	if err := validation.ValidateProjectPath(t.buildRoot); err != nil {
		return errors.NewConfigError(fmt.Sprintf("build root: %v", err))
	}

	for _, class := range Classes {
		spec, ok := t.specs[class]
		if !ok {
			return errors.NewConfigError(fmt.Sprintf("missing paths for class %s", class))
		}
		if err := validateSpec(spec); err != nil {
			return errors.NewConfigError(fmt.Sprintf("class %s: %v", class, err))
		}
		if !within(t.buildRoot, spec.DestDir) {
			return errors.NewConfigError(fmt.Sprintf(
				"class %s: destination %s is outside the build root %s", class, spec.DestDir, t.buildRoot))
		}
	}
	if len(t.specs) != len(Classes) {
		return errors.NewConfigError("path table holds an unknown asset class")
	}

	classes := t.Classes()
	for i := 0; i < len(classes); i++ {
		for j := i + 1; j < len(classes); j++ {
			a, b := classes[i], classes[j]
			if Overlaps(t.specs[a], t.specs[b]) {
				return errors.NewConfigError(fmt.Sprintf(
					"classes %s and %s write overlapping destinations (%s, %s)",
					a, b, t.specs[a].DestDir, t.specs[b].DestDir))
			}
		}
	}

	return nil
}

func validateSpec(spec PathSpec) error {
	if err := validation.ValidateGlob(spec.SourceGlob); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := validation.ValidateProjectPath(spec.DestDir); err != nil {
		return fmt.Errorf("dest: %w", err)
	}
	if err := validation.ValidateGlob(spec.WatchGlob); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// Overlaps reports whether two classes could write the same output path.
//
// A recursive class owns the whole tree below its destination. A flat class
// only owns the files directly inside its destination, so another class may
// live in a subdirectory of it; this is how pages are rendered to the build
// root while assets go to build/assets/...
func Overlaps(a, b PathSpec) bool {
	if a.DestDir == b.DestDir {
		return true
	}
	if within(a.DestDir, b.DestDir) {
		return a.Recursive()
	}
	if within(b.DestDir, a.DestDir) {
		return b.Recursive()
	}
	return false
}

// within reports whether child equals parent or lies below it.
func within(parent, child string) bool {
	parent = path.Clean(parent)
	child = path.Clean(child)
	if parent == "." || parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}
