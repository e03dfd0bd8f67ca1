package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean the build root and build every asset class once",
	Long: `Remove the build root, then build html, css, js, fonts and images in
parallel. Every failing file is listed on stderr with the collaborator that
rejected it and the command exits non-zero.

Examples:
  assetflow build                      # Build everything
  assetflow build --log-level debug    # Show every file and cache hit`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	o, _, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), "🔨 Building assets...")
	if err := o.Build(ctx); err != nil {
		out := cmd.ErrOrStderr()
		fmt.Fprintln(out, "❌ Build failed:")
		count := errors.Report(out, err)
		return fmt.Errorf("build failed with %d error(s)", count)
	}

	metrics := o.Runner().Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Built %d file(s) for %d classes in %s\n",
		metrics.FilesWritten, len(pathtable.Classes), time.Since(startTime).Round(time.Millisecond))
	return nil
}
