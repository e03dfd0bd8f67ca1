package pathtable

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclPathsFile is the top-level structure of a paths file:
//
//	clean = "build"
//
//	asset "css" {
//	  src   = "src/styles/main.pcss"
//	  dest  = "build/assets/css"
//	  watch = "src/styles/**/*.pcss"
//	}
type hclPathsFile struct {
	Clean  string      `hcl:"clean,optional"`
	Assets []*hclAsset `hcl:"asset,block"`
}

type hclAsset struct {
	Class string `hcl:"class,label"`
	Src   string `hcl:"src"`
	Dest  string `hcl:"dest"`
	Watch string `hcl:"watch,optional"`
}

// LoadHCL reads a paths file. Classes the file does not mention keep their
// default paths; a missing clean attribute keeps the default build root.
func LoadHCL(filePath string) (*Table, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse paths file %s: %w", filePath, diags)
	}

	var parsed hclPathsFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode paths file %s: %w", filePath, diags)
	}

	buildRoot := "build"
	if parsed.Clean != "" {
		buildRoot = parsed.Clean
	}

	specs := DefaultSpecs()
	seen := make(map[AssetClass]bool, len(parsed.Assets))
	for _, asset := range parsed.Assets {
		class, err := ParseClass(asset.Class)
		if err != nil {
			return nil, fmt.Errorf("paths file %s: %w", filePath, err)
		}
		if seen[class] {
			return nil, fmt.Errorf("paths file %s: class %s declared twice", filePath, class)
		}
		seen[class] = true

		specs[class] = PathSpec{
			SourceGlob: asset.Src,
			DestDir:    asset.Dest,
			WatchGlob:  asset.Watch,
		}
	}

	return New(buildRoot, specs)
}
