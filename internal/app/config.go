package app

import "unshub/internal/config"

// Config holds the application-level settings assembled from command line
// flags before the configuration file is loaded.
type Config struct {
	// Debug enables verbose logging across the application.
	Debug bool

	// Silent suppresses all log output. Used by commands that print
	// structured results to stdout.
	Silent bool

	// ConfigPath is the configuration directory. Empty means the default
	// user configuration directory.
	ConfigPath string

	// WatchConfig reloads connection configuration when config.yaml changes.
	WatchConfig bool

	// HubConfig is populated during bootstrap from the configuration file.
	HubConfig *config.Config
}

// NewConfig creates the application configuration from command line flags.
func NewConfig(debug, silent bool, configPath string, watch bool) *Config {
	return &Config{
		Debug:       debug,
		Silent:      silent,
		ConfigPath:  configPath,
		WatchConfig: watch,
	}
}
