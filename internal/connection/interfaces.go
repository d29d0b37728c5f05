package connection

import (
	"context"
	"time"

	"unshub/internal/api"
)

// DataFormat selects the wire serialisation of an output.
type DataFormat string

const (
	FormatRaw         DataFormat = "raw"
	FormatJSON        DataFormat = "json"
	FormatXML         DataFormat = "xml"
	FormatSparkplugB  DataFormat = "sparkplugb"
	FormatMessagePack DataFormat = "messagepack"
)

// InputConfiguration is a per-connection subscription: a topic filter or
// event name plus decoding hints. Adding a disabled input is accepted but
// does not subscribe.
type InputConfiguration struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	IsEnabled   bool              `json:"isEnabled" yaml:"isEnabled"`
	TopicFilter string            `json:"topicFilter,omitempty" yaml:"topicFilter,omitempty"`
	EventName   string            `json:"eventName,omitempty" yaml:"eventName,omitempty"`
	QoS         byte              `json:"qos,omitempty" yaml:"qos,omitempty"`
	BasePath    string            `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Priority    bool              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// OutputConfiguration is a per-connection publication rule: which topics it
// covers, how values are serialised, and the change-detection / rate-limit
// gates applied before every send.
type OutputConfiguration struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name,omitempty" yaml:"name,omitempty"`
	IsEnabled         bool       `json:"isEnabled" yaml:"isEnabled"`
	TopicFilters      []string   `json:"topicFilters,omitempty" yaml:"topicFilters,omitempty"`
	QoS               byte       `json:"qos,omitempty" yaml:"qos,omitempty"`
	Format            DataFormat `json:"format,omitempty" yaml:"format,omitempty"`
	EmitOnChange      bool       `json:"emitOnChange,omitempty" yaml:"emitOnChange,omitempty"`
	MinEmitIntervalMs int        `json:"minEmitIntervalMs,omitempty" yaml:"minEmitIntervalMs,omitempty"`
	IncludeTimestamp  bool       `json:"includeTimestamp,omitempty" yaml:"includeTimestamp,omitempty"`
	IncludeQuality    bool       `json:"includeQuality,omitempty" yaml:"includeQuality,omitempty"`
	UseUNSPathAsTopic bool       `json:"useUNSPathAsTopic,omitempty" yaml:"useUNSPathAsTopic,omitempty"`
	TopicPrefix       string     `json:"topicPrefix,omitempty" yaml:"topicPrefix,omitempty"`

	// Model publishing: periodically export the namespace structure instead
	// of (or in addition to) data points.
	PublishModel             bool   `json:"publishModel,omitempty" yaml:"publishModel,omitempty"`
	ModelTopic               string `json:"modelTopic,omitempty" yaml:"modelTopic,omitempty"`
	ModelAttributeName       string `json:"modelAttributeName,omitempty" yaml:"modelAttributeName,omitempty"`
	RepublishIntervalMinutes int    `json:"republishIntervalMinutes,omitempty" yaml:"republishIntervalMinutes,omitempty"`
}

// ConnectionConfiguration carries the connection-type-specific settings plus
// the attached inputs and outputs.
type ConnectionConfiguration struct {
	ID             string                 `json:"id" yaml:"id"`
	ConnectionType string                 `json:"connectionType" yaml:"connectionType"`
	Name           string                 `json:"name" yaml:"name"`
	IsEnabled      bool                   `json:"isEnabled" yaml:"isEnabled"`
	AutoStart      bool                   `json:"autoStart" yaml:"autoStart"`
	Config         map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs         []InputConfiguration   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs        []OutputConfiguration  `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Reconnection policy applied on transport loss.
	MaxReconnectAttempts int           `json:"maxReconnectAttempts,omitempty" yaml:"maxReconnectAttempts,omitempty"`
	ReconnectDelay       time.Duration `json:"reconnectDelay,omitempty" yaml:"reconnectDelay,omitempty"`
}

// ConfigString reads a string value from the typed config map.
func (c ConnectionConfiguration) ConfigString(key string) string {
	if v, ok := c.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// DataReceivedCallback is fired for every decoded leaf data point, tagged
// with the input that matched the wire event.
type DataReceivedCallback func(dp api.DataPoint, inputID string)

// StatusChangedCallback observes every state transition of a connection.
type StatusChangedCallback func(oldState, newState api.ConnectionState, message string, timestamp time.Time)

// Connection is the uniform lifecycle and event surface every connection
// type implements. Lifecycle operations return aggregate success; details
// are logged and observable through StatusChanged.
type Connection interface {
	// Initialize validates and stores the configuration. On success the
	// connection is Disconnected ("configured"); on failure it is Error.
	Initialize(cfg ConnectionConfiguration) bool

	// Start brings the transport up: Disconnected -> Connecting -> Connected.
	Start(ctx context.Context) bool

	// Stop tears the transport down: any active state -> Stopping -> Disconnected.
	Stop(ctx context.Context) bool

	// Dispose forces Stop with a bounded wait and releases all resources.
	Dispose()

	// GetState returns the current lifecycle state.
	GetState() api.ConnectionState

	// GetID returns the connection id from its configuration.
	GetID() string

	// ConfigureInput adds or replaces an input while Connected, driving the
	// underlying subscription. Disabled inputs are stored but not subscribed.
	ConfigureInput(cfg InputConfiguration) bool

	// RemoveInput removes an input and its subscription.
	RemoveInput(id string) bool

	// ConfigureOutput adds or replaces a publication rule.
	ConfigureOutput(cfg OutputConfiguration) bool

	// RemoveOutput removes a publication rule.
	RemoveOutput(id string) bool

	// SendData publishes a data point through one output (by id) or through
	// every enabled output whose filters match the point's topic.
	SendData(dp api.DataPoint, outputID string) bool

	// ValidateConfiguration checks a configuration without applying it.
	ValidateConfiguration(cfg ConnectionConfiguration) *api.ValidationResult

	// OnDataReceived registers the intake callback.
	OnDataReceived(cb DataReceivedCallback)

	// OnStatusChanged registers the transition observer.
	OnStatusChanged(cb StatusChangedCallback)
}
