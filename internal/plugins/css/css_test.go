package css

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

func writeSources(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func runCSS(t *testing.T, root string) (build.BuildResult, error) {
	t.Helper()
	p, err := NewProcessor(root, []string{"chrome58", "firefox57", "safari11", "edge16"})
	require.NoError(t, err)

	chains := map[pathtable.AssetClass]build.Chain{pathtable.CSS: p.Chain()}
	runner := build.NewRunner(pathtable.Default(), chains, build.Options{Root: root, FileTimeout: 10 * time.Second})
	return runner.RunClass(context.Background(), pathtable.CSS)
}

func TestStylesheetChainOutputs(t *testing.T) {
	root := t.TempDir()
	writeSources(t, root, map[string]string{
		"src/styles/main.pcss": "@import \"./base.pcss\";\n.card {\n  color: red;\n  .title { font-weight: bold; }\n}\n",
		"src/styles/base.pcss": "body { margin: 0; }\n",
	})

	result, err := runCSS(t, root)
	require.NoError(t, err)

	want := []string{
		"build/assets/css/style.css",
		"build/assets/css/style.min.css",
		"build/assets/css/style.min.css.map",
	}
	if diff := cmp.Diff(want, result.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}

	style, err := os.ReadFile(filepath.Join(root, "build/assets/css/style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(style), "margin: 0", "imports are inlined")
	assert.Contains(t, string(style), ".card .title", "nesting is flattened")
	assert.NotContains(t, string(style), "@import")

	min, err := os.ReadFile(filepath.Join(root, "build/assets/css/style.min.css"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(min), "/*# sourceMappingURL=style.min.css.map */\n"))
	assert.Less(t, len(min), len(style)+len("/*# sourceMappingURL=style.min.css.map */\n"))

	raw, err := os.ReadFile(filepath.Join(root, "build/assets/css/style.min.css.map"))
	require.NoError(t, err)
	var sourceMap struct {
		Version int      `json:"version"`
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(raw, &sourceMap))
	assert.Equal(t, 3, sourceMap.Version)
	assert.Equal(t, []string{"style.css"}, sourceMap.Sources)
}

func TestStylesheetCompileErrorWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeSources(t, root, map[string]string{
		"src/styles/main.pcss": "@import \"./missing.pcss\";\n",
	})

	result, err := runCSS(t, root)
	require.Error(t, err)

	assert.Empty(t, result.Outputs)
	require.Len(t, result.Errors, 1)
	assert.True(t, errors.IsKind(result.Errors[0], errors.KindTransform))
	assert.Contains(t, result.Errors[0].Error(), "via:postcss")

	_, statErr := os.Stat(filepath.Join(root, "build/assets/css"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewProcessorRejectsBadTargets(t *testing.T) {
	_, err := NewProcessor(".", []string{"mosaic1"})
	assert.Error(t, err)
}

func TestStylesheetOutputsArePrefixed(t *testing.T) {
	root := t.TempDir()
	writeSources(t, root, map[string]string{
		"src/styles/main.pcss": ".button { user-select: none; }\n",
	})

	_, err := runCSS(t, root)
	require.NoError(t, err)

	for _, name := range []string{"style.css", "style.min.css"} {
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(root, "build/assets/css", name))
			require.NoError(t, err)
			assert.Contains(t, string(data), "-webkit-user-select")
		})
	}
}
