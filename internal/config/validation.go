package config

import (
	"fmt"

	"unshub/internal/api"
)

// Validate checks the structural soundness of the configuration: parseable
// log level, sane ports, unique connection ids with known shapes.
func (c *Config) Validate() error {
	var messages []string

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		messages = append(messages, fmt.Sprintf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		messages = append(messages, fmt.Sprintf("server.metricsPort %d out of range", c.Server.MetricsPort))
	}
	if c.AutoMapping.MinimumConfidence < 0 || c.AutoMapping.MinimumConfidence > 1 {
		messages = append(messages, fmt.Sprintf("autoMapping.minimumConfidence %v out of range [0,1]",
			c.AutoMapping.MinimumConfidence))
	}
	if c.Connections.IdleTeardownSeconds < 0 {
		messages = append(messages, "connections.idleTeardownSeconds must not be negative")
	}

	seen := make(map[string]bool)
	for _, cc := range c.Connections.Ingest {
		messages = append(messages, validateConnection("ingest", cc.ID, cc.ConnectionType, seen)...)
	}
	for _, cc := range c.Connections.Publish {
		messages = append(messages, validateConnection("publish", cc.ID, cc.ConnectionType, seen)...)
	}

	if len(messages) > 0 {
		return api.NewValidationError("configuration", messages...)
	}
	return nil
}

func validateConnection(section, id, connectionType string, seen map[string]bool) []string {
	var messages []string
	if id == "" {
		messages = append(messages, fmt.Sprintf("connections.%s: connection without id", section))
		return messages
	}
	if seen[section+"/"+id] {
		messages = append(messages, fmt.Sprintf("connections.%s: duplicate connection id %s", section, id))
	}
	seen[section+"/"+id] = true
	if connectionType == "" {
		messages = append(messages, fmt.Sprintf("connections.%s: connection %s has no type", section, id))
	}
	return messages
}
