// Package html renders pages through pongo2, whose Django syntax covers the
// Jinja/Nunjucks templates the pages are written in, and pretty-prints the
// result.
package html

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/assetflow/internal/build"
)

// Renderer resolves {% include %} and {% extends %} against a list of
// search directories, first match wins.
type Renderer struct {
	includePaths []string
	data         pongo2.Context
}

// NewRenderer creates a renderer. Relative include paths are taken from
// root.
func NewRenderer(root string, includePaths []string, data map[string]interface{}) *Renderer {
	paths := make([]string, 0, len(includePaths))
	for _, p := range includePaths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, filepath.FromSlash(p))
		}
		paths = append(paths, p)
	}
	return &Renderer{includePaths: paths, data: pongo2.Context(data)}
}

// Render executes the page held by a.
func (r *Renderer) Render(ctx context.Context, a build.Asset) (build.Asset, error) {
	page := &pageLoader{name: "page:" + a.Source, content: a.Content}
	loaders := []pongo2.TemplateLoader{page}
	for _, dir := range r.includePaths {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		loader, err := pongo2.NewLocalFileSystemLoader(dir)
		if err != nil {
			return build.Asset{}, fmt.Errorf("include path %s: %w", dir, err)
		}
		loaders = append(loaders, loader)
	}

	// The page loader must come first so the page name never reaches the
	// filesystem loaders.
	set := pongo2.NewSet("assetflow", loaders...)
	tpl, err := set.FromFile(page.name)
	if err != nil {
		return build.Asset{}, err
	}

	vars := pongo2.Context{"page": filepath.Base(a.Source)}
	vars.Update(r.data)
	out, err := tpl.ExecuteBytes(vars)
	if err != nil {
		return build.Asset{}, err
	}

	a.Content = out
	return a, nil
}

// pageLoader serves the page being rendered from memory so that the chain's
// current content, not the file on disk, is what gets rendered.
type pageLoader struct {
	name    string
	content []byte
}

func (l *pageLoader) Abs(base, name string) string {
	return name
}

func (l *pageLoader) Get(path string) (io.Reader, error) {
	if path != l.name {
		return nil, fmt.Errorf("template %s not found", path)
	}
	return bytes.NewReader(l.content), nil
}
