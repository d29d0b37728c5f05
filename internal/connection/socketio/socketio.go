// Package socketio implements the Socket.IO connection type: an Engine.IO
// v4 websocket client speaking the default namespace. Events map to inputs
// by event name; payloads go through the shared JSON leaf decoder.
package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/connection"
	"unshub/pkg/logging"

	"github.com/gorilla/websocket"
)

// Engine.IO packet types (first byte of every frame).
const (
	packetOpen = '0'
	packetPing = '2'
	packetPong = '3'
	packetMsg  = '4'
)

// Socket.IO packet types (second byte of message frames).
const (
	sioConnect    = '0'
	sioDisconnect = '1'
	sioEvent      = '2'
)

const handshakeTimeout = 10 * time.Second

// socket is the slice of the websocket API the connection uses.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var dial = func(url string) (socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Connection is a Socket.IO server connection.
type Connection struct {
	*connection.BaseConnection

	mu       sync.Mutex
	sock     socket
	writeMu  sync.Mutex
	stopping bool
	done     sync.WaitGroup
}

// New creates an uninitialised Socket.IO connection.
func New() *Connection {
	return &Connection{BaseConnection: connection.NewBaseConnection()}
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

// Start dials the server, completes the Engine.IO and Socket.IO handshakes
// and begins the read loop.
func (c *Connection) Start(ctx context.Context) bool {
	c.UpdateState(api.StateConnecting, "connecting")

	sock, err := dial(endpointURL(c.Configuration().ConfigString("serverUrl")))
	if err != nil {
		c.UpdateState(api.StateError, fmt.Sprintf("dial failed: %v", err))
		return false
	}

	if err := c.handshake(sock); err != nil {
		sock.Close()
		c.UpdateState(api.StateError, fmt.Sprintf("handshake failed: %v", err))
		return false
	}

	c.mu.Lock()
	c.sock = sock
	c.stopping = false
	c.mu.Unlock()

	c.UpdateState(api.StateConnected, "connected")
	c.done.Add(1)
	go c.readLoop(sock)
	return true
}

// endpointURL appends the Engine.IO websocket path to the configured base.
func endpointURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	return base + "/socket.io/?EIO=4&transport=websocket"
}

// handshake consumes the open packet and joins the default namespace.
func (c *Connection) handshake(sock socket) error {
	_, frame, err := sock.ReadMessage()
	if err != nil {
		return err
	}
	if len(frame) == 0 || frame[0] != packetOpen {
		return fmt.Errorf("unexpected first frame %q", frame)
	}
	if err := sock.WriteMessage(websocket.TextMessage, []byte{packetMsg, sioConnect}); err != nil {
		return err
	}
	_, frame, err = sock.ReadMessage()
	if err != nil {
		return err
	}
	if len(frame) < 2 || frame[0] != packetMsg || frame[1] != sioConnect {
		return fmt.Errorf("namespace join rejected: %q", frame)
	}
	return nil
}

func (c *Connection) readLoop(sock socket) {
	defer c.done.Done()
	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stopping := c.stopping
			c.mu.Unlock()
			if !stopping {
				c.UpdateState(api.StateError, fmt.Sprintf("read failed: %v", err))
			}
			return
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case packetPing:
			c.write([]byte{packetPong})
		case packetMsg:
			if len(frame) >= 2 && frame[1] == sioEvent {
				c.handleEvent(frame[2:])
			}
			if len(frame) >= 2 && frame[1] == sioDisconnect {
				c.UpdateState(api.StateError, "server disconnected namespace")
				return
			}
		}
	}
}

// handleEvent parses a "42[...]" body and fans the payload out to every
// matching input.
func (c *Connection) handleEvent(body []byte) {
	// An ack id may precede the array; skip digits up to the bracket.
	start := 0
	for start < len(body) && body[start] != '[' {
		start++
	}
	var args []json.RawMessage
	if err := json.Unmarshal(body[start:], &args); err != nil || len(args) == 0 {
		logging.Debug("SocketIO", "Dropping unparseable event frame: %v", err)
		return
	}
	var event string
	if err := json.Unmarshal(args[0], &event); err != nil {
		return
	}

	var payload []byte
	switch len(args) {
	case 1:
		payload = []byte("null")
	case 2:
		payload = args[1]
	default:
		joined, _ := json.Marshal(args[1:])
		payload = joined
	}

	received := time.Now().UTC()
	for _, in := range c.Inputs() {
		if !in.IsEnabled || !inputMatches(in, event) {
			continue
		}
		topic := event
		if in.BasePath != "" {
			topic = in.BasePath + "/" + event
		}
		for _, dp := range connection.DecodePayload(topic, payload, received) {
			dp.SourceSystem = string(api.SourceSocketIO)
			c.EmitData(dp, in.ID)
		}
	}
}

func inputMatches(in connection.InputConfiguration, event string) bool {
	if in.EventName != "" {
		return strings.EqualFold(in.EventName, event)
	}
	return connection.MatchTopicFilter(in.TopicFilter, event)
}

// Stop leaves the namespace and closes the socket.
func (c *Connection) Stop(ctx context.Context) bool {
	c.mu.Lock()
	sock := c.sock
	if sock == nil {
		c.mu.Unlock()
		return true
	}
	c.stopping = true
	c.mu.Unlock()

	c.UpdateState(api.StateStopping, "stopping")
	c.write([]byte{packetMsg, sioDisconnect})
	c.mu.Lock()
	c.sock = nil
	c.mu.Unlock()
	sock.Close()
	c.done.Wait()
	c.UpdateState(api.StateDisconnected, "stopped")
	return true
}

// Dispose stops with a bounded wait.
func (c *Connection) Dispose() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Stop(ctx)
}

// ConfigureInput stores the input; events are matched at delivery time so
// no transport action is needed.
func (c *Connection) ConfigureInput(cfg connection.InputConfiguration) bool {
	c.PutInput(cfg)
	return true
}

// RemoveInput drops the input.
func (c *Connection) RemoveInput(id string) bool {
	_, ok := c.DropInput(id)
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

// SendData emits events through one output or every output covering the
// topic. The emitted event name is the output topic.
func (c *Connection) SendData(dp api.DataPoint, outputID string) bool {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
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
			logging.Warn("SocketIO", "Encoding for output %s failed: %v", out.ID, err)
			ok = false
			continue
		}
		frame, err := eventFrame(connection.OutputTopic(dp, out), out.Format, payload)
		if err != nil {
			ok = false
			continue
		}
		if err := c.write(frame); err != nil {
			logging.Warn("SocketIO", "Emit on output %s failed: %v", out.ID, err)
			ok = false
			continue
		}
		c.CountSent()
	}
	return ok
}

// eventFrame builds a "42[event, payload]" frame. JSON payloads are embedded
// as-is; other formats travel as strings.
func eventFrame(event string, format connection.DataFormat, payload []byte) ([]byte, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var arg []byte
	switch format {
	case connection.FormatJSON, connection.FormatSparkplugB, "":
		arg = payload
	default:
		arg, err = json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
	}
	frame := append([]byte{packetMsg, sioEvent, '['}, eventJSON...)
	frame = append(frame, ',')
	frame = append(frame, arg...)
	frame = append(frame, ']')
	return frame, nil
}

func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return api.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteMessage(websocket.TextMessage, data)
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
