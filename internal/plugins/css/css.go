// Package css bundles, prefixes and minifies stylesheets with esbuild.
package css

import (
	"context"
	"path"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/plugins/bundler"
)

// Processor holds the browser targets of the stylesheet chain.
type Processor struct {
	root    string
	engines []api.Engine
}

// NewProcessor creates a processor for the project at root. targets are
// browser versions such as "chrome58".
func NewProcessor(root string, targets []string) (*Processor, error) {
	engines, err := bundler.ParseEngines(targets)
	if err != nil {
		return nil, err
	}
	return &Processor{root: root, engines: engines}, nil
}

// Chain returns the stylesheet chain: bundle, prefix, write style.css,
// minify and write style.min.css with its map.
func (p *Processor) Chain() build.Chain {
	return build.Chain{
		build.Transform("postcss", p.Bundle),
		build.Transform("autoprefixer", p.Autoprefix),
		build.RenameBase("style.css"),
		build.Write(),
		build.RenameSuffix(".min"),
		build.Transform("csso", p.Minify),
		build.WriteWithMap(),
	}
}

// Bundle inlines @import rules, resolved next to the source file, and
// flattens nested rules.
func (p *Processor) Bundle(ctx context.Context, a build.Asset) (build.Asset, error) {
	abs, err := filepath.Abs(filepath.Join(p.root, filepath.FromSlash(a.Source)))
	if err != nil {
		return build.Asset{}, err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(a.Content),
			ResolveDir: filepath.Dir(abs),
			Sourcefile: path.Base(a.Source),
			Loader:     api.LoaderCSS,
		},
		Bundle: true,
		Write:  false,
		Loader: map[string]api.Loader{
			".pcss":    api.LoaderCSS,
			".postcss": api.LoaderCSS,
		},
		// Nesting is lowered for every browser; prefixes are added by
		// Autoprefix.
		Supported: map[string]bool{"nesting": false},
		LogLevel:  api.LogLevelSilent,
	})
	if err := bundler.Check(result.Errors); err != nil {
		return build.Asset{}, err
	}

	a.Content = result.OutputFiles[0].Contents
	a.Map = nil
	return a, nil
}

// Autoprefix adds the vendor prefixes and fallbacks the configured browsers
// need.
func (p *Processor) Autoprefix(ctx context.Context, a build.Asset) (build.Asset, error) {
	result := api.Transform(string(a.Content), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    p.engines,
		Sourcefile: path.Base(a.Rel),
		LogLevel:   api.LogLevelSilent,
	})
	if err := bundler.Check(result.Errors); err != nil {
		return build.Asset{}, err
	}

	a.Content = result.Code
	a.Map = nil
	return a, nil
}

// Minify compresses the stylesheet and produces an external source map
// against the unminified file.
func (p *Processor) Minify(ctx context.Context, a build.Asset) (build.Asset, error) {
	result := api.Transform(string(a.Content), api.TransformOptions{
		Loader:            api.LoaderCSS,
		Engines:           p.engines,
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
