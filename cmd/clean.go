package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetflow/internal/orchestrator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean:build",
	Short: "Delete the build root",
	RunE:  runClean,
}

var cacheClearCmd = &cobra.Command{
	Use:   "cache:clear",
	Short: "Empty the processed image cache",
	Long: `Empty the content cache so the next build recompresses every image.
The command always exits successfully; a cache that cannot be removed is
reported as a warning.`,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(cacheClearCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	o, _, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := o.Run(ctx, orchestrator.TaskClean); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🧹 Removed %s\n", o.Table().BuildRoot())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	o, _, err := newOrchestrator(cmd)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		return nil
	}

	if err := o.ClearCache(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "🗑️  Cache cleared")
	return nil
}
