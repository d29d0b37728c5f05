package config

import "unshub/internal/automap"

// GetDefaultConfig returns the configuration used when no config.yaml
// exists: local metrics endpoint, default queue sizing, historical storage
// off, auto-mapping on with its standard thresholds.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:        "localhost",
			MetricsPort: 9090,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		History: HistoryConfig{
			Enabled:        false,
			RetentionHours: 168,
		},
		AutoMapping: automap.DefaultConfig(),
		Connections: ConnectionsConfig{
			IdleTeardownSeconds: 30,
		},
	}
}
