package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetflow/internal/orchestrator"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild asset classes when their sources change",
	Long: `Watch the sources of every asset class and rebuild the class on change,
without an initial build and without serving. A failing rebuild is logged and
watching continues.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	o, _, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var globs []string
	for _, class := range o.Table().Classes() {
		spec, _ := o.Table().Spec(class)
		globs = append(globs, spec.WatchGlob)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "👀 Watching %s (Ctrl+C to stop)\n", strings.Join(globs, ", "))
	return o.Run(ctx, orchestrator.TaskWatch)
}
