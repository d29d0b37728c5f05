// Package natsconn implements the NATS connection type. Subjects are
// bridged to the hub's slash-separated topic form: "." becomes "/" on the
// way in, filters translate "+" to "*" and "#" to ">" on the way out.
package natsconn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/connection"
	"unshub/pkg/logging"

	"github.com/nats-io/nats.go"
)

// subscription is the part of *nats.Subscription the connection needs.
type subscription interface {
	Unsubscribe() error
}

// conn is the slice of the NATS client API the connection uses.
type conn interface {
	Subscribe(subject string, handler nats.MsgHandler) (subscription, error)
	Publish(subject string, data []byte) error
	Drain() error
	IsConnected() bool
}

type natsWrapper struct{ nc *nats.Conn }

func (w natsWrapper) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	return w.nc.Subscribe(subject, handler)
}
func (w natsWrapper) Publish(subject string, data []byte) error { return w.nc.Publish(subject, data) }
func (w natsWrapper) Drain() error                              { return w.nc.Drain() }
func (w natsWrapper) IsConnected() bool                         { return w.nc.IsConnected() }

var connect = func(c *Connection, cfg connection.ConnectionConfiguration) (conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait(cfg)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.UpdateState(api.StateConnecting, fmt.Sprintf("disconnected: %v", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.UpdateState(api.StateConnected, "reconnected")
		}),
	}
	if user := cfg.ConfigString("username"); user != "" {
		opts = append(opts, nats.UserInfo(user, cfg.ConfigString("password")))
	}
	if token := cfg.ConfigString("token"); token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(cfg.ConfigString("serverUrl"), opts...)
	if err != nil {
		return nil, err
	}
	return natsWrapper{nc: nc}, nil
}

func reconnectWait(cfg connection.ConnectionConfiguration) time.Duration {
	if cfg.ReconnectDelay > 0 {
		return cfg.ReconnectDelay
	}
	return 2 * time.Second
}

// Connection is a NATS server connection.
type Connection struct {
	*connection.BaseConnection

	mu   sync.Mutex
	conn conn
	subs map[string]subscription // input id -> live subscription
}

// New creates an uninitialised NATS connection.
func New() *Connection {
	return &Connection{
		BaseConnection: connection.NewBaseConnection(),
		subs:           make(map[string]subscription),
	}
}

// Initialize validates and stores the configuration.
func (c *Connection) Initialize(cfg connection.ConnectionConfiguration) bool {
	if result := c.ValidateConfiguration(cfg); !result.Valid {
		c.StoreConfiguration(cfg)
		c.UpdateState(api.StateError, strings.Join(result.Errors, "; "))
		return false
	}
	c.StoreConfiguration(cfg)
	c.UpdateState(api.StateDisconnected, "configured")
	return true
}

// Start connects and subscribes the enabled inputs.
func (c *Connection) Start(ctx context.Context) bool {
	c.UpdateState(api.StateConnecting, "connecting")
	nc, err := connect(c, c.Configuration())
	if err != nil {
		c.UpdateState(api.StateError, fmt.Sprintf("connect failed: %v", err))
		return false
	}
	c.mu.Lock()
	c.conn = nc
	c.mu.Unlock()

	c.UpdateState(api.StateConnected, "connected")
	for _, in := range c.Inputs() {
		if in.IsEnabled {
			c.subscribe(in)
		}
	}
	return true
}

// Stop drains the connection so in-flight messages finish delivery.
func (c *Connection) Stop(ctx context.Context) bool {
	c.mu.Lock()
	nc := c.conn
	c.conn = nil
	c.subs = make(map[string]subscription)
	c.mu.Unlock()
	if nc == nil {
		return true
	}
	c.UpdateState(api.StateStopping, "stopping")
	if err := nc.Drain(); err != nil {
		logging.Warn("NATS", "Drain failed: %v", err)
	}
	c.UpdateState(api.StateDisconnected, "stopped")
	return true
}

// Dispose stops with a bounded wait.
func (c *Connection) Dispose() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Stop(ctx)
}

// ConfigureInput stores the input and, while connected, subscribes it.
func (c *Connection) ConfigureInput(cfg connection.InputConfiguration) bool {
	c.unsubscribe(cfg.ID)
	c.PutInput(cfg)
	if !cfg.IsEnabled {
		return true
	}
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		return c.subscribe(cfg)
	}
	return true
}

// RemoveInput drops the input and its subscription.
func (c *Connection) RemoveInput(id string) bool {
	_, ok := c.DropInput(id)
	c.unsubscribe(id)
	return ok
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

// SendData publishes through one output or every output covering the topic.
func (c *Connection) SendData(dp api.DataPoint, outputID string) bool {
	c.mu.Lock()
	nc := c.conn
	c.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
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
			logging.Warn("NATS", "Encoding for output %s failed: %v", out.ID, err)
			ok = false
			continue
		}
		subject := ToSubject(connection.OutputTopic(dp, out))
		if err := nc.Publish(subject, payload); err != nil {
			logging.Warn("NATS", "Publish on output %s failed: %v", out.ID, err)
			ok = false
			continue
		}
		c.CountSent()
	}
	return ok
}

// ValidateConfiguration checks server settings against the schema.
func (c *Connection) ValidateConfiguration(cfg connection.ConnectionConfiguration) *api.ValidationResult {
	result := api.NewValidationResult()
	errs, warns := connection.ValidateAgainstSchema(Schema(), cfg.Config)
	for _, e := range errs {
		result.AddError(e)
	}
	for _, w := range warns {
		result.AddWarning(w)
	}
	return result
}

func (c *Connection) subscribe(in connection.InputConfiguration) bool {
	c.mu.Lock()
	nc := c.conn
	c.mu.Unlock()
	if nc == nil {
		return false
	}
	inputID := in.ID
	sub, err := nc.Subscribe(ToSubject(in.TopicFilter), func(msg *nats.Msg) {
		received := time.Now().UTC()
		topic := ToTopic(msg.Subject)
		for _, dp := range connection.DecodePayload(topic, msg.Data, received) {
			dp.SourceSystem = string(api.SourceNATS)
			c.EmitData(dp, inputID)
		}
	})
	if err != nil {
		logging.Warn("NATS", "Subscribe %s failed: %v", in.TopicFilter, err)
		return false
	}
	c.mu.Lock()
	c.subs[in.ID] = sub
	c.mu.Unlock()
	return true
}

func (c *Connection) unsubscribe(inputID string) {
	c.mu.Lock()
	sub, ok := c.subs[inputID]
	if ok {
		delete(c.subs, inputID)
	}
	c.mu.Unlock()
	if ok {
		if err := sub.Unsubscribe(); err != nil {
			logging.Warn("NATS", "Unsubscribe input %s failed: %v", inputID, err)
		}
	}
}

// ToSubject converts a slash-separated topic filter to a NATS subject:
// "/" -> ".", "+" -> "*", trailing "#" -> ">". An empty filter subscribes
// to everything.
func ToSubject(filter string) string {
	if filter == "" {
		return ">"
	}
	subject := strings.ReplaceAll(filter, "/", ".")
	subject = strings.ReplaceAll(subject, "+", "*")
	if strings.HasSuffix(subject, "#") {
		subject = strings.TrimSuffix(subject, "#") + ">"
	}
	return subject
}

// ToTopic converts a NATS subject to the hub's topic form.
func ToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
