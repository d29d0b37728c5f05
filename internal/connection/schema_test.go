package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func brokerSchema() ConfigSchema {
	return ConfigSchema{
		Groups: []string{"Broker", "Auth"},
		Fields: []SchemaField{
			{Key: "brokerUrl", Label: "Broker URL", Type: FieldText, Required: true, Group: "Broker"},
			{Key: "username", Label: "Username", Type: FieldText, Group: "Auth"},
			{Key: "password", Label: "Password", Type: FieldPassword, Group: "Auth"},
			{Key: "protocol", Label: "Protocol", Type: FieldSelect, Options: []string{"tcp", "ssl"}},
		},
	}
}

func TestMaskSecretsReplacesPasswordFields(t *testing.T) {
	masked := brokerSchema().MaskSecrets(map[string]interface{}{
		"brokerUrl": "tcp://broker:1883",
		"password":  "hunter2",
	})

	assert.Equal(t, "tcp://broker:1883", masked["brokerUrl"])
	assert.Equal(t, "********", masked["password"])
}

func TestUnmaskSecretsKeepsStoredValueForMask(t *testing.T) {
	schema := brokerSchema()
	stored := map[string]interface{}{"password": "hunter2"}

	merged := schema.UnmaskSecrets(map[string]interface{}{
		"brokerUrl": "tcp://new:1883",
		"password":  "********",
	}, stored)
	assert.Equal(t, "hunter2", merged["password"])

	merged = schema.UnmaskSecrets(map[string]interface{}{"password": "newpass"}, stored)
	assert.Equal(t, "newpass", merged["password"])
}

func TestValidateAgainstSchema(t *testing.T) {
	errs, warns := ValidateAgainstSchema(brokerSchema(), map[string]interface{}{
		"protocol": "udp",
		"extra":    true,
	})

	assert.Contains(t, errs, "missing required field brokerUrl")
	assert.Contains(t, errs, "field protocol has unsupported value udp")
	assert.Contains(t, warns, "unknown field extra")

	errs, _ = ValidateAgainstSchema(brokerSchema(), map[string]interface{}{
		"brokerUrl": "tcp://broker:1883",
		"protocol":  "ssl",
	})
	assert.Empty(t, errs)
}
