// Package cmd provides the assetflow command-line interface.
//
// Configuration System:
//
//	Settings are resolved with the following precedence:
//	1. Command-line flags (--config, --log-level, --port, ...)
//	2. ASSETFLOW_CONFIG_FILE environment variable: custom config file path
//	3. Individual environment variables (ASSETFLOW_SERVER_PORT, ...)
//	4. Configuration file (.assetflow.yml)
//	5. Built-in defaults matching the src/, public/, build/ layout
//
// Environment Variables:
//
//	ASSETFLOW_CONFIG_FILE: Path to custom configuration file
//	ASSETFLOW_SERVER_PORT: Override server port
//	ASSETFLOW_BUILD_CACHE_DIR: Override the content cache directory
//	And every other key following the ASSETFLOW_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetflow/internal/config"
	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/orchestrator"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetflow",
	Short: "Build, watch and serve the static assets of a web project",
	Long: `assetflow turns the sources of a static site into a build directory:

  src/html/pages/*.html   rendered with includes and pretty-printed into build/
  src/styles/main.pcss    bundled, prefixed and minified into build/assets/css/
  src/scripts/main.js     include-expanded, transpiled and minified into build/assets/js/
  public/images/**        optimized into build/assets/img/
  public/fonts/**         copied into build/assets/fonts/

Run without a subcommand to build, serve the result with live reload and
rebuild on every change (the same as "assetflow dev").

Quick Start:
  assetflow init            Write a default .assetflow.yml
  assetflow                 Build, serve and watch
  assetflow build           One-shot build
  assetflow tasks           List the task graph`,
	SilenceUsage: true,
	RunE:         runDev,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetflow.yml, can also use ASSETFLOW_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	addFlagValidation(rootCmd.PersistentFlags(), "log-level", oneOf("debug", "info", "warn", "error"))
	addFlagValidation(rootCmd.PersistentFlags(), "log-format", oneOf("text", "json"))

	addServerFlags(rootCmd)
}

// initConfig points Viper at the configuration file and the ASSETFLOW_
// environment. A missing file is not an error: every key has a default.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETFLOW_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetflow")
	}

	viper.SetEnvPrefix("ASSETFLOW")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// addServerFlags binds the dev server flags of cmd to the server.* keys.
// They are persistent so "assetflow --port 4000" and "assetflow dev --port
// 4000" behave the same.
func addServerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.IntP("port", "p", 3000, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.Bool("open", false, "Open the browser once the server is up")
	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("server.host", flags.Lookup("host"))
	viper.BindPFlag("server.open", flags.Lookup("open"))
	addFlagValidation(flags, "port", validatePort)
}

// newLogger builds the process logger from the log.* settings.
func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// newOrchestrator loads the configuration and builds the task graph for the
// project in the working directory.
func newOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	o, err := orchestrator.New(cfg, orchestrator.Options{
		Root:   ".",
		Logger: newLogger(cmd, cfg),
	})
	if err != nil {
		return nil, nil, err
	}
	return o, cfg, nil
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
