package mqtt

import "unshub/internal/connection"

// Descriptor registers the MQTT connection type.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return "mqtt" }
func (Descriptor) DisplayName() string { return "MQTT Broker" }
func (Descriptor) Description() string {
	return "Subscribes to and publishes on an MQTT broker (3.1.1)."
}

func (Descriptor) ConnectionSchema() connection.ConfigSchema { return Schema() }

func (Descriptor) InputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "topicFilter", Label: "Topic filter", Type: connection.FieldText, Required: true,
			Placeholder: "plant/+/temperature", Help: "MQTT filter with + and # wildcards"},
		{Key: "qos", Label: "QoS", Type: connection.FieldSelect, Options: []string{"0", "1", "2"}, DefaultValue: "0"},
	}}
}

func (Descriptor) OutputSchema() connection.ConfigSchema {
	return connection.ConfigSchema{Fields: []connection.SchemaField{
		{Key: "qos", Label: "QoS", Type: connection.FieldSelect, Options: []string{"0", "1", "2"}, DefaultValue: "0"},
		{Key: "format", Label: "Format", Type: connection.FieldSelect,
			Options: []string{"raw", "json", "xml", "messagepack", "sparkplugb"}, DefaultValue: "json"},
	}}
}

func (Descriptor) DefaultConfiguration() connection.ConnectionConfiguration {
	return connection.ConnectionConfiguration{
		ConnectionType: "mqtt",
		IsEnabled:      true,
		Config: map[string]interface{}{
			"brokerUrl": "tcp://localhost:1883",
		},
	}
}

func (Descriptor) New() connection.Connection { return New() }

// Schema describes the broker-level settings.
func Schema() connection.ConfigSchema {
	return connection.ConfigSchema{
		Groups: []string{"Broker", "Authentication"},
		Fields: []connection.SchemaField{
			{Key: "brokerUrl", Label: "Broker URL", Type: connection.FieldText, Required: true,
				Placeholder: "tcp://broker:1883", Group: "Broker"},
			{Key: "clientId", Label: "Client ID", Type: connection.FieldText, Group: "Broker",
				Help: "Generated when empty"},
			{Key: "username", Label: "Username", Type: connection.FieldText, Group: "Authentication"},
			{Key: "password", Label: "Password", Type: connection.FieldPassword, Group: "Authentication"},
		},
	}
}
