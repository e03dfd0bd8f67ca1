// Package js expands include directives, transpiles and minifies scripts
// with esbuild.
package js

import (
	"context"
	"path"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/plugins/bundler"
)

// Processor holds the language target of the script chain.
type Processor struct {
	root   string
	target api.Target
}

// NewProcessor creates a processor for the project at root. target is a
// language level such as "es2015".
func NewProcessor(root, target string) (*Processor, error) {
	t, err := bundler.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	return &Processor{root: root, target: t}, nil
}

// Chain returns the script chain: include, transpile, write script.js, then
// minify and write script.min.js with its map.
func (p *Processor) Chain() build.Chain {
	return build.Chain{
		build.Transform("include", p.Include),
		build.Transform("babel", p.Transpile),
		build.RenameBase("script.js"),
		build.Write(),
		build.RenameSuffix(".min"),
		build.Transform("uglify", p.Minify),
		build.WriteWithMap(),
	}
}

func (p *Processor) abs(source string) (string, error) {
	return filepath.Abs(filepath.Join(p.root, filepath.FromSlash(source)))
}

// Include inlines "//= include" and "//= require" directives.
func (p *Processor) Include(ctx context.Context, a build.Asset) (build.Asset, error) {
	file, err := p.abs(a.Source)
	if err != nil {
		return build.Asset{}, err
	}

	out, err := Expand(file, a.Content)
	if err != nil {
		return build.Asset{}, err
	}

	a.Content = out
	return a, nil
}

// Transpile bundles ES module imports into one IIFE and lowers syntax to the
// configured target.
func (p *Processor) Transpile(ctx context.Context, a build.Asset) (build.Asset, error) {
	file, err := p.abs(a.Source)
	if err != nil {
		return build.Asset{}, err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(a.Content),
			ResolveDir: filepath.Dir(file),
			Sourcefile: path.Base(a.Source),
			Loader:     api.LoaderJS,
		},
		Bundle:   true,
		Write:    false,
		Format:   api.FormatIIFE,
		Target:   p.target,
		LogLevel: api.LogLevelSilent,
	})
	if err := bundler.Check(result.Errors); err != nil {
		return build.Asset{}, err
	}

	a.Content = result.OutputFiles[0].Contents
	a.Map = nil
	return a, nil
}

// Minify compresses the script and produces an external source map against
// the unminified file.
func (p *Processor) Minify(ctx context.Context, a build.Asset) (build.Asset, error) {
	result := api.Transform(string(a.Content), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            p.target,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        bundler.Unminified(a.Rel),
		LogLevel:          api.LogLevelSilent,
	})
	if err := bundler.Check(result.Errors); err != nil {
		return build.Asset{}, err
	}

	a.Content = result.Code
	a.Map = result.Map
	return a, nil
}
