// Package mqtt implements the MQTT connection type on the Eclipse Paho
// client. Inputs map to broker subscriptions, outputs to publishes;
// payloads go through the shared JSON leaf decoder.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/connection"
	"unshub/pkg/logging"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// client is the slice of the Paho API the connection uses; a fake stands in
// for it in tests.
type client interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
}

var newClient = func(opts *pahomqtt.ClientOptions) client {
	return pahomqtt.NewClient(opts)
}

// Connection is an MQTT broker connection. Broker subscriptions are held
// per topic filter, not per input: Paho keeps a single callback per filter,
// so inputs sharing a filter share one subscription and the refcount decides
// when the broker-side subscribe and unsubscribe actually happen.
type Connection struct {
	*connection.BaseConnection

	client         client
	connectTimeout time.Duration

	mu      sync.Mutex
	filters map[string]int // enabled inputs per broker filter
}

// New creates an uninitialised MQTT connection.
func New() *Connection {
	return &Connection{
		BaseConnection: connection.NewBaseConnection(),
		connectTimeout: defaultConnectTimeout,
		filters:        make(map[string]int),
	}
}

// Initialize validates the configuration and prepares the Paho client.
func (c *Connection) Initialize(cfg connection.ConnectionConfiguration) bool {
	if result := c.ValidateConfiguration(cfg); !result.Valid {
		c.StoreConfiguration(cfg)
		c.UpdateState(api.StateError, strings.Join(result.Errors, "; "))
		return false
	}
	c.StoreConfiguration(cfg)

	clientID := cfg.ConfigString("clientId")
	if clientID == "" {
		clientID = "unshub-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.ConfigString("brokerUrl")).
		SetClientID(clientID).
		SetUsername(cfg.ConfigString("username")).
		SetPassword(cfg.ConfigString("password")).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval(cfg)).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.UpdateState(api.StateConnecting, fmt.Sprintf("connection lost: %v", err))
		}).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.UpdateState(api.StateConnected, "connected")
			c.resubscribe()
		})

	c.client = newClient(opts)
	c.UpdateState(api.StateDisconnected, "configured")
	return true
}

func maxReconnectInterval(cfg connection.ConnectionConfiguration) time.Duration {
	if cfg.ReconnectDelay > 0 {
		return cfg.ReconnectDelay
	}
	return time.Minute
}

// Start connects to the broker and subscribes the enabled inputs.
func (c *Connection) Start(ctx context.Context) bool {
	if c.client == nil {
		c.UpdateState(api.StateError, "not initialized")
		return false
	}
	c.UpdateState(api.StateConnecting, "connecting")

	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		c.UpdateState(api.StateError, "connect timed out")
		return false
	}
	if err := token.Error(); err != nil {
		c.UpdateState(api.StateError, fmt.Sprintf("connect failed: %v", err))
		return false
	}

	c.UpdateState(api.StateConnected, "connected")
	c.resubscribe()
	return true
}

// Stop unsubscribes everything and disconnects.
func (c *Connection) Stop(ctx context.Context) bool {
	if c.client == nil {
		return true
	}
	c.UpdateState(api.StateStopping, "stopping")
	c.mu.Lock()
	held := make([]string, 0, len(c.filters))
	for filter := range c.filters {
		held = append(held, filter)
	}
	c.filters = make(map[string]int)
	c.mu.Unlock()
	for _, filter := range held {
		c.client.Unsubscribe(filter)
	}
	c.client.Disconnect(disconnectQuiesceMs)
	c.UpdateState(api.StateDisconnected, "stopped")
	return true
}

// Dispose stops the connection with a bounded wait.
func (c *Connection) Dispose() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Stop(ctx)
}

// ConfigureInput stores the input and moves its filter subscription: the
// old filter is released and the new one acquired, each touching the broker
// only when the input was the last or the first holder.
func (c *Connection) ConfigureInput(cfg connection.InputConfiguration) bool {
	prev, had := c.Input(cfg.ID)
	c.PutInput(cfg)

	prevActive := had && prev.IsEnabled && prev.TopicFilter != ""
	nextActive := cfg.IsEnabled && cfg.TopicFilter != ""
	same := prevActive && nextActive && prev.TopicFilter == cfg.TopicFilter
	if same {
		return true
	}
	if prevActive {
		c.releaseFilter(prev.TopicFilter)
	}
	if nextActive {
		return c.acquireFilter(cfg.TopicFilter, cfg.QoS)
	}
	return true
}

// RemoveInput drops the input and releases its share of the filter
// subscription. The broker subscription survives while other inputs still
// use the same filter.
func (c *Connection) RemoveInput(id string) bool {
	in, ok := c.DropInput(id)
	if !ok {
		return false
	}
	if in.IsEnabled && in.TopicFilter != "" {
		c.releaseFilter(in.TopicFilter)
	}
	return true
}

// ConfigureOutput stores the publication rule.
func (c *Connection) ConfigureOutput(cfg connection.OutputConfiguration) bool {
	c.PutOutput(cfg)
	return true
}

// RemoveOutput drops the publication rule.
func (c *Connection) RemoveOutput(id string) bool {
	_, ok := c.DropOutput(id)
	return ok
}

// SendData publishes through one output or through every output covering
// the topic.
func (c *Connection) SendData(dp api.DataPoint, outputID string) bool {
	if c.client == nil || !c.client.IsConnected() {
		return false
	}

	var outputs []connection.OutputConfiguration
	if outputID != "" {
		out, ok := c.Output(outputID)
		if !ok || !out.IsEnabled {
			return false
		}
		outputs = []connection.OutputConfiguration{out}
	} else {
		outputs = c.OutputsForTopic(dp.Topic)
	}

	ok := true
	for _, out := range outputs {
		payload, err := connection.EncodePayload(dp, out)
		if err != nil {
			logging.Warn("MQTT", "Encoding for output %s failed: %v", out.ID, err)
			ok = false
			continue
		}
		token := c.client.Publish(connection.OutputTopic(dp, out), out.QoS, false, payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			logging.Warn("MQTT", "Publish on output %s failed: %v", out.ID, token.Error())
			ok = false
			continue
		}
		c.CountSent()
	}
	return ok
}

// ValidateConfiguration checks broker settings against the schema.
func (c *Connection) ValidateConfiguration(cfg connection.ConnectionConfiguration) *api.ValidationResult {
	result := api.NewValidationResult()
	errs, warns := connection.ValidateAgainstSchema(Schema(), cfg.Config)
	for _, e := range errs {
		result.AddError(e)
	}
	for _, w := range warns {
		result.AddWarning(w)
	}
	if url := cfg.ConfigString("brokerUrl"); url != "" &&
		!strings.Contains(url, "://") {
		result.AddError("brokerUrl must include a scheme (tcp://, ssl://, ws://)")
	}
	return result
}

// acquireFilter records one more enabled input on the filter and subscribes
// at the broker when it is the first holder.
func (c *Connection) acquireFilter(filter string, qos byte) bool {
	c.mu.Lock()
	c.filters[filter]++
	first := c.filters[filter] == 1
	c.mu.Unlock()
	if !first || c.client == nil || !c.client.IsConnected() {
		return true
	}
	return c.subscribe(filter, qos)
}

// releaseFilter drops one enabled input from the filter and unsubscribes at
// the broker when it was the last holder.
func (c *Connection) releaseFilter(filter string) {
	c.mu.Lock()
	if c.filters[filter] > 0 {
		c.filters[filter]--
	}
	last := c.filters[filter] == 0
	if last {
		delete(c.filters, filter)
	}
	c.mu.Unlock()
	if last && c.client != nil && c.client.IsConnected() {
		c.client.Unsubscribe(filter)
	}
}

// resubscribe re-issues the broker subscriptions after a (re)connect. The
// refcounts are rebuilt from the enabled inputs; each distinct filter is
// subscribed once, at the highest QoS any of its inputs asks for.
func (c *Connection) resubscribe() {
	counts := make(map[string]int)
	qos := make(map[string]byte)
	for _, in := range c.Inputs() {
		if in.IsEnabled && in.TopicFilter != "" {
			counts[in.TopicFilter]++
			if in.QoS > qos[in.TopicFilter] {
				qos[in.TopicFilter] = in.QoS
			}
		}
	}
	c.mu.Lock()
	c.filters = counts
	c.mu.Unlock()
	for filter, q := range qos {
		c.subscribe(filter, q)
	}
}

func (c *Connection) subscribe(filter string, qos byte) bool {
	token := c.client.Subscribe(filter, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleMessage(filter, msg)
	})
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		logging.Warn("MQTT", "Subscribe %s failed: %v", filter, token.Error())
		return false
	}
	logging.Debug("MQTT", "Subscribed to %s", filter)
	return true
}

// handleMessage decodes a broker message once and fans it out to every
// enabled input holding the filter it arrived on.
func (c *Connection) handleMessage(filter string, msg pahomqtt.Message) {
	received := time.Now().UTC()
	points := connection.DecodePayload(msg.Topic(), msg.Payload(), received)
	for _, in := range c.Inputs() {
		if !in.IsEnabled || in.TopicFilter != filter {
			continue
		}
		for _, dp := range points {
			dp.SourceSystem = string(api.SourceMQTT)
			c.EmitData(dp, in.ID)
		}
	}
}
