package socketio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"unshub/internal/api"
	"unshub/internal/connection"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-s.in:
		return websocket.TextMessage, frame, nil
	case <-s.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) writtenFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	for i, w := range s.writes {
		out[i] = string(w)
	}
	return out
}

func withFakeSocket(t *testing.T) *fakeSocket {
	t.Helper()
	fs := newFakeSocket()
	// Handshake frames: Engine.IO open, then namespace ack.
	fs.in <- []byte(`0{"sid":"abc","pingInterval":25000}`)
	fs.in <- []byte(`40{"sid":"abc"}`)
	orig := dial
	dial = func(url string) (socket, error) { return fs, nil }
	t.Cleanup(func() { dial = orig })
	return fs
}

func startedConnection(t *testing.T, fs *fakeSocket) *Connection {
	t.Helper()
	c := New()
	require.True(t, c.Initialize(connection.ConnectionConfiguration{
		ID:             "sio1",
		ConnectionType: "socketio",
		Config:         map[string]interface{}{"serverUrl": "http://server:3000"},
	}))
	require.True(t, c.Start(context.Background()))
	require.Equal(t, api.StateConnected, c.GetState())
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "ws://server:3000/socket.io/?EIO=4&transport=websocket",
		endpointURL("http://server:3000/"))
	assert.Equal(t, "wss://server/socket.io/?EIO=4&transport=websocket",
		endpointURL("https://server"))
}

func TestStartCompletesHandshake(t *testing.T) {
	fs := withFakeSocket(t)
	startedConnection(t, fs)

	frames := fs.writtenFrames()
	require.NotEmpty(t, frames)
	assert.Equal(t, "40", frames[0])
}

func TestEventsRouteToMatchingInputs(t *testing.T) {
	fs := withFakeSocket(t)
	c := startedConnection(t, fs)

	var mu sync.Mutex
	var got []api.DataPoint
	var inputs []string
	c.OnDataReceived(func(dp api.DataPoint, inputID string) {
		mu.Lock()
		got = append(got, dp)
		inputs = append(inputs, inputID)
		mu.Unlock()
	})

	require.True(t, c.ConfigureInput(connection.InputConfiguration{
		ID: "in1", IsEnabled: true, EventName: "telemetry", BasePath: "plant",
	}))
	require.True(t, c.ConfigureInput(connection.InputConfiguration{
		ID: "in2", IsEnabled: true, EventName: "other",
	}))

	fs.in <- []byte(`42["telemetry",{"temp":21.5}]`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "plant/telemetry/temp", got[0].Topic)
	assert.Equal(t, 21.5, got[0].Value)
	assert.Equal(t, "socketio", got[0].SourceSystem)
	assert.Equal(t, []string{"in1"}, inputs)
}

func TestPingAnsweredWithPong(t *testing.T) {
	fs := withFakeSocket(t)
	startedConnection(t, fs)

	fs.in <- []byte("2")

	waitFor(t, func() bool {
		for _, f := range fs.writtenFrames() {
			if f == "3" {
				return true
			}
		}
		return false
	})
}

func TestSendDataEmitsEventFrame(t *testing.T) {
	fs := withFakeSocket(t)
	c := startedConnection(t, fs)

	require.True(t, c.ConfigureOutput(connection.OutputConfiguration{
		ID: "out1", IsEnabled: true, Format: connection.FormatJSON,
	}))

	require.True(t, c.SendData(api.DataPoint{Topic: "plant/temp", Value: 20}, "out1"))

	var frame string
	waitFor(t, func() bool {
		for _, f := range fs.writtenFrames() {
			if len(f) > 2 && f[:2] == "42" {
				frame = f
				return true
			}
		}
		return false
	})
	assert.Contains(t, frame, `"plant/temp"`)
	assert.Contains(t, frame, `"value":20`)
}

func TestStopClosesSocket(t *testing.T) {
	fs := withFakeSocket(t)
	c := startedConnection(t, fs)

	require.True(t, c.Stop(context.Background()))
	assert.Equal(t, api.StateDisconnected, c.GetState())

	select {
	case <-fs.closed:
	default:
		t.Fatal("socket not closed")
	}
}

func TestDialFailureSetsErrorState(t *testing.T) {
	orig := dial
	dial = func(url string) (socket, error) { return nil, errors.New("refused") }
	t.Cleanup(func() { dial = orig })

	c := New()
	require.True(t, c.Initialize(connection.ConnectionConfiguration{
		ID:     "sio1",
		Config: map[string]interface{}{"serverUrl": "http://server:3000"},
	}))
	assert.False(t, c.Start(context.Background()))
	assert.Equal(t, api.StateError, c.GetState())
}
