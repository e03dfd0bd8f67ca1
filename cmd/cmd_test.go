package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetflow/internal/config"
	"github.com/conneroisu/assetflow/internal/testutils"
)

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// inProject switches to dir with a fresh Viper and returns a command whose
// output is captured.
func inProject(t *testing.T, dir string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	chdir(t, dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("log.level", "error")

	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func TestBuildCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	cmd, stdout, _ := inProject(t, dir)

	require.NoError(t, runBuild(cmd, nil))

	assert.Contains(t, stdout.String(), "Building assets")
	assert.Contains(t, stdout.String(), "✅ Built")
	for _, name := range []string{
		"build/index.html",
		"build/assets/css/style.min.css",
		"build/assets/js/script.min.js",
		"build/assets/img/logo.png",
		"build/assets/fonts/inter.woff2",
	} {
		assert.FileExists(t, name)
	}
}

func TestBuildCommandReportsFailures(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFiles(t, dir, map[string]string{
		"src/scripts/main.js": "function (\n",
	})
	cmd, _, stderr := inProject(t, dir)

	err := runBuild(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed with")
	assert.Contains(t, stderr.String(), "❌ Build failed:")
	assert.Contains(t, stderr.String(), "main.js")

	// Other classes still build.
	assert.FileExists(t, "build/assets/css/style.min.css")
}

func TestCleanCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFiles(t, dir, map[string]string{"build/stale.txt": "old"})
	cmd, stdout, _ := inProject(t, dir)

	require.NoError(t, runClean(cmd, nil))
	assert.NoDirExists(t, "build")
	assert.Contains(t, stdout.String(), "Removed")

	// Cleaning an absent build root succeeds.
	require.NoError(t, runClean(cmd, nil))
}

func TestCacheClearCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFiles(t, dir, map[string]string{".assetflow/cache/entry": "x"})
	cmd, stdout, _ := inProject(t, dir)

	require.NoError(t, runCacheClear(cmd, nil))
	assert.Contains(t, stdout.String(), "Cache cleared")
	assert.NoFileExists(t, filepath.Join(".assetflow", "cache", "entry"))
}

func TestCacheClearCommandNeverFails(t *testing.T) {
	dir := t.TempDir()
	cmd, _, stderr := inProject(t, dir)
	// A destination outside the build root makes the configuration invalid.
	viper.Set("paths.css.dest", "../elsewhere")

	require.NoError(t, runCacheClear(cmd, nil))
	assert.Contains(t, stderr.String(), "Warning:")
}

func TestTasksCommand(t *testing.T) {
	cmd, stdout, _ := inProject(t, t.TempDir())

	require.NoError(t, runTasks(cmd, nil))
	for _, name := range []string{"build", "clean:build", "css:build", "dev", "default", "cache:clear"} {
		assert.Contains(t, stdout.String(), name+"\n")
	}
}

func TestRunCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	cmd, _, _ := inProject(t, dir)

	require.NoError(t, runTask(cmd, []string{"css:build"}))
	assert.FileExists(t, "build/assets/css/style.min.css")
	assert.NoFileExists(t, "build/index.html")

	assert.Error(t, runTask(cmd, []string{"no:such:task"}))
}

func TestInitCommand(t *testing.T) {
	cmd, stdout, _ := inProject(t, t.TempDir())
	initForce, initScaffold = false, false
	t.Cleanup(func() { initForce, initScaffold = false, false })

	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, stdout.String(), configFileName)

	data, err := os.ReadFile(configFileName)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "paths")
	assert.Contains(t, raw, "server")

	// The written file loads back to the defaults.
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Paths, cfg.Paths)
	assert.Equal(t, config.Default().Build.Debounce, cfg.Build.Debounce)

	err = runInit(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	initForce = true
	assert.NoError(t, runInit(cmd, nil))
}

func TestInitCommandScaffold(t *testing.T) {
	cmd, _, _ := inProject(t, t.TempDir())
	initForce, initScaffold = false, true
	t.Cleanup(func() { initForce, initScaffold = false, false })

	require.NoError(t, runInit(cmd, []string{"site"}))
	assert.FileExists(t, filepath.Join("site", configFileName))
	for name := range starterSources {
		assert.FileExists(t, filepath.Join("site", filepath.FromSlash(name)))
	}
	assert.DirExists(t, filepath.Join("site", "public", "images"))

	// The scaffold builds cleanly.
	chdir(t, "site")
	require.NoError(t, runBuild(cmd, nil))
	assert.FileExists(t, "build/index.html")
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat, versionShort, versionDetailed = "text", false, false })

	tests := []struct {
		name     string
		format   string
		short    bool
		detailed bool
		want     string
	}{
		{"default", "text", false, false, "assetflow "},
		{"short", "text", true, false, ""},
		{"detailed", "text", false, true, "Version: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versionFormat, versionShort, versionDetailed = tt.format, tt.short, tt.detailed
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)

			require.NoError(t, runVersion(cmd, nil))
			assert.Contains(t, out.String(), tt.want)
			assert.NotEmpty(t, out.String())
		})
	}

	t.Run("json", func(t *testing.T) {
		versionFormat = "json"
		var out bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)

		require.NoError(t, runVersion(cmd, nil))
		var info map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &info))
		assert.Contains(t, info, "version")
		assert.Contains(t, info, "platform")
	})

	t.Run("unknown format", func(t *testing.T) {
		versionFormat = "xml"
		assert.Error(t, runVersion(&cobra.Command{}, nil))
	})
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid port", []string{"--port", "8080"}, false},
		{"free port", []string{"--port", "0"}, false},
		{"port out of range", []string{"--port", "70000"}, true},
		{"port not a number", []string{"--port", "http"}, true},
		{"valid level", []string{"--log-level", "DEBUG"}, false},
		{"unknown level", []string{"--log-level", "trace"}, true},
		{"unknown format", []string{"--log-format", "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			flags := cmd.PersistentFlags()
			flags.Int("port", 3000, "")
			flags.String("log-level", "info", "")
			flags.String("log-format", "text", "")
			addFlagValidation(flags, "port", validatePort)
			addFlagValidation(flags, "log-level", oneOf("debug", "info", "warn", "error"))
			addFlagValidation(flags, "log-format", oneOf("text", "json"))

			err := flags.Parse(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDevCommandInterrupted(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	cmd, stdout, _ := inProject(t, dir)
	viper.Set("server.port", 0)
	viper.Set("server.host", "127.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd.SetContext(ctx)

	err := runDev(cmd, nil)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Contains(t, stdout.String(), "Stopped")
}
