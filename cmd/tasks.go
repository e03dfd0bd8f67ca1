package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the registered tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run one registered task, such as css:build",
	Long: `Run a single task of the task graph by name. "assetflow tasks" lists
the names.

Examples:
  assetflow run css:build     # Rebuild the stylesheets only
  assetflow run clean:build   # Same as "assetflow clean:build"`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(runCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	o, _, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	for _, name := range o.Tasks() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runTask(cmd *cobra.Command, args []string) error {
	o, _, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	return o.Run(ctx, args[0])
}
