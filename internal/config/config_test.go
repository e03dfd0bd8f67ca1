package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Build.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Build.FileTimeout)
	assert.Positive(t, cfg.Build.Workers)
	assert.Equal(t, []string{"chrome58", "firefox57", "safari11", "edge16"}, cfg.CSS.Targets)
	assert.Equal(t, 80, cfg.Img.JPEGQualityMin)
	assert.Equal(t, 90, cfg.Img.JPEGQualityMax)

	table, err := cfg.PathTable()
	require.NoError(t, err)
	assert.Equal(t, pathtable.Default(), table, "defaults must match the conventional layout")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "server overrides",
			setup: func() {
				viper.Set("server.port", 8080)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("server.open", true)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
				assert.True(t, cfg.Server.Open)
			},
		},
		{
			name: "duration from string",
			setup: func() {
				viper.Set("build.debounce", "1s")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Second, cfg.Build.Debounce)
			},
		},
		{
			name: "zero workers fall back to cpu count",
			setup: func() {
				viper.Set("build.workers", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Positive(t, cfg.Build.Workers)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "port out of range",
			setup: func() {
				viper.Set("server.port", 70000)
			},
			expectError: true,
		},
		{
			name: "dangerous host",
			setup: func() {
				viper.Set("server.host", "localhost;rm -rf /")
			},
			expectError: true,
		},
		{
			name: "cache dir traversal",
			setup: func() {
				viper.Set("build.cache_dir", "../../cache")
			},
			expectError: true,
		},
		{
			name: "cache dir inside build root",
			setup: func() {
				viper.Set("build.cache_dir", "./build/.cache")
			},
			expectError: true,
		},
		{
			name: "cache dir is build root",
			setup: func() {
				viper.Set("paths.clean", "./dist")
				viper.Set("build.cache_dir", "dist/")
			},
			expectError: true,
		},
		{
			name: "cache dir beside build root",
			setup: func() {
				viper.Set("build.cache_dir", "./build-cache")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "./build-cache", cfg.Build.CacheDir)
			},
		},
		{
			name: "inverted jpeg quality",
			setup: func() {
				viper.Set("img.jpeg_quality_min", 95)
				viper.Set("img.jpeg_quality_max", 70)
			},
			expectError: true,
		},
		{
			name: "unknown log format",
			setup: func() {
				viper.Set("log.format", "xml")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			tt.setup()

			cfg, err := Load()
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				assert.True(t, errors.IsKind(err, errors.KindConfig))
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".assetflow.yml")
	content := `
paths:
  clean: ./dist
  html:
    src: ./site/*.html
    dest: ./dist/
  css:
    src: ./site/app.pcss
    dest: ./dist/css/
  js:
    src: ./site/app.js
    dest: ./dist/js/
    watch: ./site/**/*.js
  img:
    src: ./site/img/**/*
    dest: ./dist/img/
  fonts:
    src: ./site/fonts/**/*
    dest: ./dist/fonts/
js:
  target: es2017
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "es2017", cfg.JS.Target)

	table, err := cfg.PathTable()
	require.NoError(t, err)
	assert.Equal(t, "dist", table.BuildRoot())

	js, _ := table.Spec(pathtable.JS)
	assert.Equal(t, "site/**/*.js", js.WatchGlob)
	css, _ := table.Spec(pathtable.CSS)
	assert.Equal(t, "site/app.pcss", css.WatchGlob)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("ASSETFLOW_SERVER_PORT", "4100")
	t.Setenv("ASSETFLOW_CSS_TARGETS", "chrome90,safari14")

	v := viper.New()
	v.SetEnvPrefix("ASSETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, []string{"chrome90", "safari14"}, cfg.CSS.Targets)
}

func TestPathTableOverlapIsConfigError(t *testing.T) {
	v := viper.New()
	v.Set("paths.fonts.dest", "./build/assets/img/")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	_, err = cfg.PathTable()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.Contains(t, err.Error(), "overlapping")
}

func TestPathTableFromHCL(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile("paths.hcl", []byte(`
asset "fonts" {
  src  = "assets/fonts/**/*"
  dest = "build/fonts"
}
`), 0o644))

	v := viper.New()
	v.Set("paths_file", "paths.hcl")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	table, err := cfg.PathTable()
	require.NoError(t, err)
	fonts, _ := table.Spec(pathtable.Fonts)
	assert.Equal(t, "build/fonts", fonts.DestDir)
	css, _ := table.Spec(pathtable.CSS)
	assert.Equal(t, "build/assets/css", css.DestDir)

	cfg.Build.CacheDir = "build/.cache"
	_, err = cfg.PathTable()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestYAMLReadsBack(t *testing.T) {
	want := Default()
	want.Build.Debounce = 150 * time.Millisecond

	data, err := yaml.Marshal(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debounce: 150ms")

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	got, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
