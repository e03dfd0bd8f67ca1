// Package plugins assembles the transform chain of every asset class from
// the collaborator packages below it.
package plugins

import (
	"fmt"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/config"
	"github.com/conneroisu/assetflow/internal/pathtable"
	"github.com/conneroisu/assetflow/internal/plugins/css"
	"github.com/conneroisu/assetflow/internal/plugins/html"
	"github.com/conneroisu/assetflow/internal/plugins/img"
	"github.com/conneroisu/assetflow/internal/plugins/js"
)

// Chains returns one chain per asset class for the project at root.
func Chains(cfg *config.Config, root string) (map[pathtable.AssetClass]build.Chain, error) {
	renderer := html.NewRenderer(root, cfg.HTML.IncludePaths, nil)

	styles, err := css.NewProcessor(root, cfg.CSS.Targets)
	if err != nil {
		return nil, fmt.Errorf("css targets: %w", err)
	}

	scripts, err := js.NewProcessor(root, cfg.JS.Target)
	if err != nil {
		return nil, fmt.Errorf("js target: %w", err)
	}

	images := img.NewOptimizer(cfg.Img.JPEGQualityMin, cfg.Img.JPEGQualityMax)

	return map[pathtable.AssetClass]build.Chain{
		pathtable.HTML: {
			build.Transform("nunjucks", renderer.Render),
			build.Transform("htmlbeautify", html.Pretty),
			build.Write(),
		},
		pathtable.CSS:   styles.Chain(),
		pathtable.JS:    scripts.Chain(),
		pathtable.Img:   images.Chain(),
		pathtable.Fonts: {build.Write()},
	}, nil
}
