package connection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/pkg/logging"
)

// ManagerOptions configures the connection manager.
type ManagerOptions struct {
	// IdleTeardown keeps a connection alive after its last subscriber
	// releases it, so a quick re-acquire reuses the transport. Zero tears
	// down immediately.
	IdleTeardown time.Duration
}

// ConnectionStatus is the externally visible summary of one managed
// connection.
type ConnectionStatus struct {
	ID               string              `json:"id"`
	ConnectionType   string              `json:"connectionType"`
	Name             string              `json:"name"`
	State            api.ConnectionState `json:"state"`
	LastError        string              `json:"lastError,omitempty"`
	Subscribers      int                 `json:"subscribers"`
	MessagesReceived int64               `json:"messagesReceived"`
	MessagesSent     int64               `json:"messagesSent"`
}

// Manager owns every live connection and shares each one between
// subscribers. At most one transport exists per connection id; subscribers
// acquire a handle, configure their own inputs through it, and release it
// when done. Input ids are namespaced per subscriber so one subscriber's
// reconfiguration never invalidates another's subscription.
type Manager struct {
	registry *Registry
	events   *bus.Bus
	opts     ManagerOptions

	mu    sync.Mutex
	conns map[string]*managedConnection
}

type managedConnection struct {
	conn        Connection
	cfg         ConnectionConfiguration
	subscribers map[string]*Handle
	idleTimer   *time.Timer
}

// Handle is one subscriber's view of a shared connection.
type Handle struct {
	manager      *Manager
	connectionID string
	subscriberID string

	mu       sync.RWMutex
	onData   DataReceivedCallback
	released bool
}

// NewManager creates a manager resolving connection types through registry
// and mirroring status transitions onto events.
func NewManager(registry *Registry, events *bus.Bus, opts ManagerOptions) *Manager {
	return &Manager{
		registry: registry,
		events:   events,
		opts:     opts,
		conns:    make(map[string]*managedConnection),
	}
}

// Acquire returns a handle on the connection with cfg.ID, creating and
// starting the transport on first acquisition. Later acquirers share the
// existing transport; their configuration must carry the same id and type,
// the rest of the stored configuration wins.
func (m *Manager) Acquire(ctx context.Context, subscriberID string, cfg ConnectionConfiguration) (*Handle, error) {
	if cfg.ID == "" {
		return nil, api.NewValidationError("connection configuration", "id is empty")
	}
	if subscriberID == "" {
		return nil, api.NewValidationError("connection acquisition", "subscriber id is empty")
	}

	m.mu.Lock()
	mc, exists := m.conns[cfg.ID]
	if exists {
		if mc.cfg.ConnectionType != cfg.ConnectionType {
			m.mu.Unlock()
			return nil, api.NewValidationError("connection configuration",
				fmt.Sprintf("connection %s is already running as type %s", cfg.ID, mc.cfg.ConnectionType))
		}
		if mc.idleTimer != nil {
			mc.idleTimer.Stop()
			mc.idleTimer = nil
		}
		h := m.newHandle(cfg.ID, subscriberID)
		mc.subscribers[subscriberID] = h
		count := len(mc.subscribers)
		m.mu.Unlock()
		logging.Debug("ConnectionManager", "Subscriber %s joined connection %s (%d subscribers)",
			subscriberID, cfg.ID, count)
		m.configureScopedInputs(h, cfg.Inputs)
		return h, nil
	}
	m.mu.Unlock()

	desc, ok := m.registry.Get(cfg.ConnectionType)
	if !ok {
		return nil, api.NewValidationError("connection configuration",
			"unknown connection type "+cfg.ConnectionType)
	}

	conn := desc.New()
	// Inputs are installed per subscriber after start; the transport comes
	// up without any.
	initial := cfg
	initial.Inputs = nil
	if !conn.Initialize(initial) {
		return nil, fmt.Errorf("connection %s: initialization failed", cfg.ID)
	}
	conn.OnDataReceived(func(dp api.DataPoint, inputID string) {
		m.route(cfg.ID, dp, inputID)
	})
	conn.OnStatusChanged(func(oldState, newState api.ConnectionState, message string, at time.Time) {
		m.events.Publish(context.Background(), api.ConnectionStatusChangedEvent{
			ConnectionID: cfg.ID,
			OldState:     oldState,
			NewState:     newState,
			Message:      message,
			Timestamp:    at,
		})
	})
	if !conn.Start(ctx) {
		conn.Dispose()
		return nil, fmt.Errorf("connection %s: start failed", cfg.ID)
	}

	h := m.newHandle(cfg.ID, subscriberID)
	m.mu.Lock()
	if existing, raced := m.conns[cfg.ID]; raced {
		// Another acquirer created the transport first; keep theirs.
		existing.subscribers[subscriberID] = h
		m.mu.Unlock()
		conn.Dispose()
		m.configureScopedInputs(h, cfg.Inputs)
		return h, nil
	}
	m.conns[cfg.ID] = &managedConnection{
		conn:        conn,
		cfg:         cfg,
		subscribers: map[string]*Handle{subscriberID: h},
	}
	m.mu.Unlock()

	logging.Info("ConnectionManager", "Started connection %s (%s) for subscriber %s",
		cfg.ID, cfg.ConnectionType, subscriberID)
	m.configureScopedInputs(h, cfg.Inputs)
	return h, nil
}

func (m *Manager) newHandle(connectionID, subscriberID string) *Handle {
	return &Handle{manager: m, connectionID: connectionID, subscriberID: subscriberID}
}

func (m *Manager) configureScopedInputs(h *Handle, inputs []InputConfiguration) {
	for _, in := range inputs {
		if err := h.ConfigureInput(in); err != nil {
			logging.Warn("ConnectionManager", "Input %s on connection %s rejected: %v",
				in.ID, h.connectionID, err)
		}
	}
}

// route delivers a decoded data point to the subscriber owning the input.
func (m *Manager) route(connectionID string, dp api.DataPoint, inputID string) {
	subscriberID, localID, ok := splitScopedID(inputID)
	if !ok {
		logging.Warn("ConnectionManager", "Dropping data point on connection %s: unscoped input id %s",
			connectionID, inputID)
		return
	}

	m.mu.Lock()
	mc, exists := m.conns[connectionID]
	var h *Handle
	if exists {
		h = mc.subscribers[subscriberID]
	}
	m.mu.Unlock()
	if h == nil {
		return
	}

	h.mu.RLock()
	cb := h.onData
	h.mu.RUnlock()
	if cb != nil {
		dp.ConnectionID = connectionID
		cb(dp, localID)
	}
	dataPointsReceived.WithLabelValues(connectionID).Inc()
}

// Release detaches a subscriber: its inputs are removed from the transport
// and, when it was the last subscriber, the connection is torn down, either
// immediately or after the idle grace period.
func (m *Manager) Release(h *Handle) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.onData = nil
	h.mu.Unlock()

	m.mu.Lock()
	mc, exists := m.conns[h.connectionID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(mc.subscribers, h.subscriberID)
	remaining := len(mc.subscribers)
	conn := mc.conn
	if remaining == 0 {
		if m.opts.IdleTeardown > 0 {
			id := h.connectionID
			mc.idleTimer = time.AfterFunc(m.opts.IdleTeardown, func() {
				m.teardownIfIdle(id)
			})
			m.mu.Unlock()
			m.removeSubscriberInputs(conn, h.subscriberID)
			logging.Debug("ConnectionManager", "Connection %s idle, teardown in %s",
				h.connectionID, m.opts.IdleTeardown)
			return
		}
		delete(m.conns, h.connectionID)
		m.mu.Unlock()
		m.removeSubscriberInputs(conn, h.subscriberID)
		m.teardown(h.connectionID, conn)
		return
	}
	m.mu.Unlock()
	m.removeSubscriberInputs(conn, h.subscriberID)
	logging.Debug("ConnectionManager", "Subscriber %s left connection %s (%d remaining)",
		h.subscriberID, h.connectionID, remaining)
}

func (m *Manager) removeSubscriberInputs(conn Connection, subscriberID string) {
	type lister interface{ Inputs() []InputConfiguration }
	l, ok := conn.(lister)
	if !ok {
		return
	}
	prefix := subscriberID + ":"
	for _, in := range l.Inputs() {
		if strings.HasPrefix(in.ID, prefix) {
			conn.RemoveInput(in.ID)
		}
	}
}

func (m *Manager) teardownIfIdle(connectionID string) {
	m.mu.Lock()
	mc, exists := m.conns[connectionID]
	if !exists || len(mc.subscribers) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.conns, connectionID)
	conn := mc.conn
	m.mu.Unlock()
	m.teardown(connectionID, conn)
}

func (m *Manager) teardown(connectionID string, conn Connection) {
	logging.Info("ConnectionManager", "Tearing down connection %s", connectionID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn.Stop(ctx)
	conn.Dispose()
}

// Shutdown releases every connection regardless of subscribers. Used on
// process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := make(map[string]Connection, len(m.conns))
	for id, mc := range m.conns {
		if mc.idleTimer != nil {
			mc.idleTimer.Stop()
		}
		conns[id] = mc.conn
	}
	m.conns = make(map[string]*managedConnection)
	m.mu.Unlock()

	for id, conn := range conns {
		m.teardown(id, conn)
	}
}

// Get returns the live connection with the given id.
func (m *Manager) Get(connectionID string) (Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.conns[connectionID]
	if !ok {
		return nil, false
	}
	return mc.conn, true
}

// SubscriberCount returns how many subscribers share the connection.
func (m *Manager) SubscriberCount(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.conns[connectionID]
	if !ok {
		return 0
	}
	return len(mc.subscribers)
}

// Statuses returns a summary of every managed connection, sorted by id.
func (m *Manager) Statuses() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConnectionStatus, 0, len(m.conns))
	for id, mc := range m.conns {
		st := ConnectionStatus{
			ID:             id,
			ConnectionType: mc.cfg.ConnectionType,
			Name:           mc.cfg.Name,
			State:          mc.conn.GetState(),
			Subscribers:    len(mc.subscribers),
		}
		type counters interface {
			MessagesReceived() int64
			MessagesSent() int64
			LastError() string
		}
		if c, ok := mc.conn.(counters); ok {
			st.MessagesReceived = c.MessagesReceived()
			st.MessagesSent = c.MessagesSent()
			st.LastError = c.LastError()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConfigureInput installs an input on the shared transport under the
// subscriber's namespace, so ids never collide across subscribers.
func (h *Handle) ConfigureInput(cfg InputConfiguration) error {
	h.mu.RLock()
	released := h.released
	h.mu.RUnlock()
	if released {
		return api.NewConnectionNotFoundError(h.connectionID)
	}
	conn, ok := h.manager.Get(h.connectionID)
	if !ok {
		return api.NewConnectionNotFoundError(h.connectionID)
	}
	scoped := cfg
	scoped.ID = scopeID(h.subscriberID, cfg.ID)
	if !conn.ConfigureInput(scoped) {
		return fmt.Errorf("connection %s: input %s rejected", h.connectionID, cfg.ID)
	}
	return nil
}

// RemoveInput removes one of this subscriber's inputs.
func (h *Handle) RemoveInput(id string) error {
	conn, ok := h.manager.Get(h.connectionID)
	if !ok {
		return api.NewConnectionNotFoundError(h.connectionID)
	}
	if !conn.RemoveInput(scopeID(h.subscriberID, id)) {
		return api.NewInputNotFoundError(id)
	}
	return nil
}

// ConfigureOutput installs a publication rule. Outputs are connection-wide,
// not per subscriber.
func (h *Handle) ConfigureOutput(cfg OutputConfiguration) error {
	conn, ok := h.manager.Get(h.connectionID)
	if !ok {
		return api.NewConnectionNotFoundError(h.connectionID)
	}
	if !conn.ConfigureOutput(cfg) {
		return fmt.Errorf("connection %s: output %s rejected", h.connectionID, cfg.ID)
	}
	return nil
}

// SendData publishes a data point through the shared transport.
func (h *Handle) SendData(dp api.DataPoint, outputID string) bool {
	conn, ok := h.manager.Get(h.connectionID)
	if !ok {
		return false
	}
	return conn.SendData(dp, outputID)
}

// OnData registers the subscriber's intake callback. Data points arrive
// tagged with the subscriber's own input ids.
func (h *Handle) OnData(cb DataReceivedCallback) {
	h.mu.Lock()
	h.onData = cb
	h.mu.Unlock()
}

// ConnectionID returns the id of the shared connection.
func (h *Handle) ConnectionID() string { return h.connectionID }

func scopeID(subscriberID, inputID string) string {
	return subscriberID + ":" + inputID
}

func splitScopedID(scoped string) (subscriberID, inputID string, ok bool) {
	idx := strings.Index(scoped, ":")
	if idx <= 0 || idx == len(scoped)-1 {
		return "", "", false
	}
	return scoped[:idx], scoped[idx+1:], true
}
