package natsconn

import "unshub/internal/connection"

// Descriptor registers the NATS connection type.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return "nats" }
func (Descriptor) DisplayName() string { return "NATS" }
func (Descriptor) Description() string {
	return "Subscribes to and publishes on NATS subjects."
}

func (Descriptor) ConnectionSchema() connection.ConfigSchema { return Schema() }

func (Descriptor) InputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "topicFilter", Label: "Topic filter", Type: connection.FieldText, Required: true,
			Placeholder: "plant/+/temperature", Help: "Translated to a NATS subject (+ -> *, # -> >)"},
	}}
}

func (Descriptor) OutputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "format", Label: "Format", Type: connection.FieldSelect,
			Options: []string{"raw", "json", "xml", "messagepack", "sparkplugb"}, DefaultValue: "json"},
	}}
}

func (Descriptor) DefaultConfiguration() connection.ConnectionConfiguration {
	return connection.ConnectionConfiguration{
		ConnectionType: "nats",
		IsEnabled:      true,
		Config: map[string]interface{}{
			"serverUrl": "nats://localhost:4222",
		},
	}
}

func (Descriptor) New() connection.Connection { return New() }

// Schema describes the server-level settings.
func Schema() connection.ConfigSchema {
	return connection.ConfigSchema{
		Groups: []string{"Server", "Authentication"},
		Fields: []connection.SchemaField{
			{Key: "serverUrl", Label: "Server URL", Type: connection.FieldText, Required: true,
				Placeholder: "nats://server:4222", Group: "Server"},
			{Key: "username", Label: "Username", Type: connection.FieldText, Group: "Authentication"},
			{Key: "password", Label: "Password", Type: connection.FieldPassword, Group: "Authentication"},
			{Key: "token", Label: "Token", Type: connection.FieldPassword, Group: "Authentication"},
		},
	}
}
