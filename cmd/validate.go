package cmd

import (
	"fmt"

	"unshub/internal/config"
	"unshub/internal/connection"
	"unshub/internal/connection/mqtt"
	"unshub/internal/connection/natsconn"
	"unshub/internal/connection/socketio"

	"github.com/spf13/cobra"
)

var validateConfigPath string

// validateCmd loads and validates the configuration without starting the
// hub, so broken files are caught before a restart. Connection entries are
// additionally checked against their type's configuration schema.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the unshub configuration",
	Long: `Loads config.yaml from the configuration directory and runs the same
validation the server applies at startup, including per-connection schema
checks. Exits non-zero when the configuration is malformed or invalid.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := validateConfigPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	registry := connection.NewRegistry()
	for _, desc := range []connection.Descriptor{
		mqtt.Descriptor{},
		natsconn.Descriptor{},
		socketio.Descriptor{},
	} {
		if err := registry.Register(desc); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, cc := range append(cfg.Connections.Ingest, cfg.Connections.Publish...) {
		desc, ok := registry.Get(cc.ConnectionType)
		if !ok {
			fmt.Fprintf(out, "connection %s: unknown type %q\n", cc.ID, cc.ConnectionType)
			invalid++
			continue
		}
		result := desc.New().ValidateConfiguration(cc)
		for _, msg := range result.Warnings {
			fmt.Fprintf(out, "connection %s: warning: %s\n", cc.ID, msg)
		}
		if !result.Valid {
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "connection %s: %s\n", cc.ID, msg)
			}
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d connection(s) failed validation", invalid)
	}

	fmt.Fprintf(out, "Configuration at %s is valid\n", path)
	fmt.Fprintf(out, "  ingest connections:  %d\n", len(cfg.Connections.Ingest))
	fmt.Fprintf(out, "  publish connections: %d\n", len(cfg.Connections.Publish))
	fmt.Fprintf(out, "  auto-mapping:        enabled=%t rules=%d\n",
		cfg.AutoMapping.Enabled, len(cfg.AutoMapping.Rules))
	fmt.Fprintf(out, "  history:             enabled=%t retention=%dh\n",
		cfg.History.Enabled, cfg.History.RetentionHours)
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateConfigPath, "config-path", "", "Custom configuration directory path")
}
