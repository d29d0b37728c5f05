package socketio

import "unshub/internal/connection"

// Descriptor registers the Socket.IO connection type.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return "socketio" }
func (Descriptor) DisplayName() string { return "Socket.IO" }
func (Descriptor) Description() string {
	return "Receives events from and emits events to a Socket.IO server."
}

func (Descriptor) ConnectionSchema() connection.ConfigSchema { return Schema() }

func (Descriptor) InputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "eventName", Label: "Event name", Type: connection.FieldText,
			Help: "Exact event to listen for; leave empty to match by filter"},
		{Key: "topicFilter", Label: "Event filter", Type: connection.FieldText,
			Placeholder: "telemetry/#"},
		{Key: "basePath", Label: "Base path", Type: connection.FieldText,
			Help: "Prefixed to the event name to form the topic"},
	}}
}

func (Descriptor) OutputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "format", Label: "Format", Type: connection.FieldSelect,
			Options: []string{"raw", "json", "xml", "messagepack"}, DefaultValue: "json"},
	}}
}

func (Descriptor) DefaultConfiguration() connection.ConnectionConfiguration {
	return connection.ConnectionConfiguration{
		ConnectionType: "socketio",
		IsEnabled:      true,
		Config: map[string]interface{}{
			"serverUrl": "http://localhost:3000",
		},
	}
}

func (Descriptor) New() connection.Connection { return New() }

// Schema describes the server-level settings.
func Schema() connection.ConfigSchema {
	return connection.ConfigSchema{
		Fields: []connection.SchemaField{
			{Key: "serverUrl", Label: "Server URL", Type: connection.FieldText, Required: true,
				Placeholder: "http://server:3000"},
		},
	}
}
