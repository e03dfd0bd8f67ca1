package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"serve", "s"},
	Short:   "Build, then serve the build root with live reload and rebuild on change",
	Long: `Build every asset class, then serve the build root and watch the sources
until interrupted. Stylesheet changes are swapped into open pages in place;
every other change reloads the page. Build errors are shown in the browser
console and on /__assetflow/status.

Examples:
  assetflow dev                  # Serve on localhost:3000
  assetflow dev --port 8080      # Serve on another port
  assetflow dev --open           # Open the browser once the server is up`,
	RunE: runDev,
}

// ErrInterrupted is returned when a signal ends the dev loop.
var ErrInterrupted = errors.New("interrupted")

func init() {
	rootCmd.AddCommand(devCmd)
}

func runDev(cmd *cobra.Command, args []string) error {
	o, cfg, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "🚀 Serving %s on http://%s (Ctrl+C to stop)\n",
		o.Table().BuildRoot(), cfg.Server.Addr())
	err = o.Dev(ctx)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.OutOrStdout(), "👋 Stopped")
		return ErrInterrupted
	}
	return err
}
