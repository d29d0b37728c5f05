package cmd

import (
	"context"
	"fmt"

	"unshub/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath specifies a custom configuration directory. When empty,
// the default user configuration directory is used.
var serveConfigPath string

// serveWatchConfig reloads runtime-applicable settings when config.yaml
// changes on disk.
var serveWatchConfig bool

// serveCmd starts the hub: all configured connections, the ingestion
// pipeline, the publisher, and the metrics endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the unshub server",
	Long: `Starts the hub: acquires the configured ingest and publish connections,
runs the ingestion pipeline and the change-detecting publisher, and serves
Prometheus metrics.

Configuration:
  unshub loads config.yaml from ~/.config/unshub by default. Use
  --config-path to load from a different directory. The file declares the
  connections, queue sizing, auto-mapping rules, and history retention.

The process runs until interrupted (Ctrl+C or SIGTERM) and shuts down the
connections gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, false, serveConfigPath, serveWatchConfig)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
	serveCmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false, "Reload configuration when config.yaml changes")
}
