// Package testutils holds project fixtures shared by package tests.
package testutils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetflow/internal/config"
)

// StandardSources is a minimal project with one source per asset class in
// the conventional layout.
var StandardSources = map[string]string{
	"src/html/pages/index.html": `<!DOCTYPE html>
<html>
<head><title>{{ page }}</title></head>
<body>{% include "partials/header.html" %}<main>home</main></body>
</html>
`,
	"src/html/partials/header.html": `<header><h1>Site</h1></header>`,
	"src/styles/main.pcss": `@import "./components/button.pcss";

body {
  & main { display: flex; }
}
`,
	"src/styles/components/button.pcss": `.button { user-select: none; }
`,
	"src/scripts/main.js": `//= include ./modules/greet.js
greet("world");
`,
	"src/scripts/modules/greet.js": `function greet(name) {
  const message = ` + "`hello ${name}`" + `;
  console.log(message);
}
`,
	"public/fonts/inter.woff2": "wOF2",
}

// CreateTempProject writes StandardSources plus a small PNG to a temporary
// directory and returns its path.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	projectDir := t.TempDir()
	WriteFiles(t, projectDir, StandardSources)

	pngPath := filepath.Join(projectDir, "public", "images", "logo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(pngPath), 0o755))
	require.NoError(t, os.WriteFile(pngPath, TestPNG(t), 0o644))

	return projectDir
}

// CreateTestConfig returns the default configuration with timings suited to
// tests.
func CreateTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Build.Debounce = 50 * time.Millisecond
	cfg.Build.Workers = 2
	cfg.Build.FileTimeout = 10 * time.Second
	return cfg
}

// WriteFiles writes files, keyed by slash separated project-relative path,
// under root.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// ReadFile returns the content of a project-relative file.
func ReadFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

// TestPNG returns an uncompressed 32x32 gradient PNG.
func TestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
