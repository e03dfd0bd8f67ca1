package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetflow/internal/config"
)

const configFileName = ".assetflow.yml"

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default .assetflow.yml",
	Long: `Write a .assetflow.yml holding every default setting, so the project
layout can be changed in one place. With --scaffold the conventional source
layout is created with one starter file per asset class.

Examples:
  assetflow init                # Configure the current directory
  assetflow init site --scaffold  # New project with starter sources
  assetflow init --force        # Overwrite an existing .assetflow.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initForce    bool
	initScaffold bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initScaffold, "scaffold", false, "Create starter sources for every asset class")
}

// starterSources are written by --scaffold; existing files are kept.
var starterSources = map[string]string{
	"src/html/pages/index.html": `<!DOCTYPE html>
<html>
<head>
<title>{{ page }}</title>
<link rel="stylesheet" href="/assets/css/style.min.css">
</head>
<body>
{% include "partials/header.html" %}
<main>Hello</main>
<script src="/assets/js/script.min.js"></script>
</body>
</html>
`,
	"src/html/partials/header.html": "<header><h1>My site</h1></header>\n",
	"src/styles/main.pcss": `@import "./components/base.pcss";
`,
	"src/styles/components/base.pcss": `body {
  margin: 0;
  & main { padding: 1rem; }
}
`,
	"src/scripts/main.js": `//= include ./modules/hello.js
hello();
`,
	"src/scripts/modules/hello.js": `function hello() {
  console.log("hello from assetflow");
}
`,
}

var starterDirs = []string{"public/images", "public/fonts"}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	configPath := filepath.Join(projectDir, configFileName)
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	if err := writeDefaultConfig(configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "📝 Wrote %s\n", configPath)

	if initScaffold {
		written, err := scaffold(projectDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📁 Created %d starter file(s)\n", written)
	}
	return nil
}

// writeDefaultConfig writes config.Default with workers left to the runtime.
func writeDefaultConfig(path string) error {
	cfg := config.Default()
	cfg.Build.Workers = 0

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	header := []byte("# assetflow configuration. Every key is optional.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func scaffold(projectDir string) (int, error) {
	for _, dir := range starterDirs {
		if err := os.MkdirAll(filepath.Join(projectDir, filepath.FromSlash(dir)), 0o755); err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	written := 0
	for name, content := range starterSources {
		path := filepath.Join(projectDir, filepath.FromSlash(name))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}
