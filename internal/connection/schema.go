package connection

// FieldType enumerates the editor widgets a schema field can request.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextArea FieldType = "textarea"
	FieldPassword FieldType = "password"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
	FieldSelect   FieldType = "select"
	FieldJSON     FieldType = "json"
)

// SchemaField describes one configurable setting of a connection type.
type SchemaField struct {
	Key          string      `json:"key"`
	Label        string      `json:"label"`
	Type         FieldType   `json:"type"`
	Required     bool        `json:"required,omitempty"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
	Placeholder  string      `json:"placeholder,omitempty"`
	Help         string      `json:"help,omitempty"`
	Options      []string    `json:"options,omitempty"`
	Group        string      `json:"group,omitempty"`
}

// ConfigSchema is the self-describing settings surface of a connection
// type: the fields a frontend renders and the groups they are arranged in.
type ConfigSchema struct {
	Groups []string      `json:"groups,omitempty"`
	Fields []SchemaField `json:"fields"`
}

// Field returns the schema field with the given key.
func (s ConfigSchema) Field(key string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return SchemaField{}, false
}

// secretMask replaces secret values on every external read path.
const secretMask = "********"

// MaskSecrets returns a copy of the config map with every password-typed
// field's value replaced by a fixed mask. Plain values pass through.
func (s ConfigSchema) MaskSecrets(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(config))
	for k, v := range config {
		if f, ok := s.Field(k); ok && f.Type == FieldPassword {
			if str, ok := v.(string); ok && str != "" {
				masked[k] = secretMask
				continue
			}
		}
		masked[k] = v
	}
	return masked
}

// UnmaskSecrets merges an edited config against the previously stored one:
// a password field still carrying the mask keeps its stored value, so a
// round-trip through the editor never overwrites a secret with the mask.
func (s ConfigSchema) UnmaskSecrets(edited, stored map[string]interface{}) map[string]interface{} {
	if edited == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(edited))
	for k, v := range edited {
		if f, ok := s.Field(k); ok && f.Type == FieldPassword {
			if str, ok := v.(string); ok && str == secretMask {
				merged[k] = stored[k]
				continue
			}
		}
		merged[k] = v
	}
	return merged
}

// ValidateAgainstSchema checks a config map against the schema: required
// fields present and select values in range. Unknown keys produce warnings
// so older configs survive schema evolution.
func ValidateAgainstSchema(schema ConfigSchema, config map[string]interface{}) (errors, warnings []string) {
	for _, f := range schema.Fields {
		v, ok := config[f.Key]
		if !ok || v == nil || v == "" {
			if f.Required && f.DefaultValue == nil {
				errors = append(errors, "missing required field "+f.Key)
			}
			continue
		}
		if f.Type == FieldSelect && len(f.Options) > 0 {
			s, isString := v.(string)
			if !isString {
				errors = append(errors, "field "+f.Key+" must be a string")
				continue
			}
			found := false
			for _, opt := range f.Options {
				if opt == s {
					found = true
					break
				}
			}
			if !found {
				errors = append(errors, "field "+f.Key+" has unsupported value "+s)
			}
		}
	}
	for k := range config {
		if _, ok := schema.Field(k); !ok {
			warnings = append(warnings, "unknown field "+k)
		}
	}
	return errors, warnings
}
