package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// BaseConnection provides the state machine, configuration storage and
// callback plumbing shared by every connection type. Concrete connections
// embed it and drive the transport; the base keeps the bookkeeping
// consistent so all types report state and emit events the same way.
type BaseConnection struct {
	mu      sync.RWMutex
	cfg     ConnectionConfiguration
	state   api.ConnectionState
	inputs  map[string]InputConfiguration
	outputs map[string]OutputConfiguration

	// lastError holds the message of the most recent failed transition.
	lastError string

	onData   DataReceivedCallback
	onStatus StatusChangedCallback

	// Message counters for the status surface.
	received atomic.Int64
	sent     atomic.Int64
}

// NewBaseConnection creates a base in the Disabled state.
func NewBaseConnection() *BaseConnection {
	return &BaseConnection{
		state:   api.StateDisabled,
		inputs:  make(map[string]InputConfiguration),
		outputs: make(map[string]OutputConfiguration),
	}
}

// StoreConfiguration records the configuration and seeds the input/output
// maps. Called by concrete connections from Initialize after their own
// validation passed.
func (b *BaseConnection) StoreConfiguration(cfg ConnectionConfiguration) {
	b.mu.Lock()
	b.cfg = cfg
	b.inputs = make(map[string]InputConfiguration, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		b.inputs[in.ID] = in
	}
	b.outputs = make(map[string]OutputConfiguration, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		b.outputs[out.ID] = out
	}
	b.mu.Unlock()
}

// Configuration returns a copy of the stored configuration.
func (b *BaseConnection) Configuration() ConnectionConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// GetID returns the connection id.
func (b *BaseConnection) GetID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.ID
}

// GetState returns the current lifecycle state.
func (b *BaseConnection) GetState() api.ConnectionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastError returns the message recorded with the most recent Error state.
func (b *BaseConnection) LastError() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

// UpdateState transitions the state machine and notifies the status
// observer. The callback runs outside the lock so observers can call back
// into the connection without deadlocking.
func (b *BaseConnection) UpdateState(newState api.ConnectionState, message string) {
	b.mu.Lock()
	oldState := b.state
	if oldState == newState {
		b.mu.Unlock()
		return
	}
	b.state = newState
	if newState == api.StateError {
		b.lastError = message
	}
	cb := b.onStatus
	id := b.cfg.ID
	b.mu.Unlock()

	logging.Debug("Connection", "Connection %s: %s -> %s (%s)", id, oldState, newState, message)
	if cb != nil {
		cb(oldState, newState, message, time.Now().UTC())
	}
}

// OnDataReceived registers the intake callback.
func (b *BaseConnection) OnDataReceived(cb DataReceivedCallback) {
	b.mu.Lock()
	b.onData = cb
	b.mu.Unlock()
}

// OnStatusChanged registers the transition observer.
func (b *BaseConnection) OnStatusChanged(cb StatusChangedCallback) {
	b.mu.Lock()
	b.onStatus = cb
	b.mu.Unlock()
}

// EmitData delivers a decoded data point to the registered intake callback
// and bumps the receive counter.
func (b *BaseConnection) EmitData(dp api.DataPoint, inputID string) {
	b.mu.RLock()
	cb := b.onData
	b.mu.RUnlock()
	b.received.Add(1)
	if cb != nil {
		cb(dp, inputID)
	}
}

// CountSent bumps the send counter; concrete connections call it after a
// successful transport publish.
func (b *BaseConnection) CountSent() { b.sent.Add(1) }

// MessagesReceived returns the number of data points emitted so far.
func (b *BaseConnection) MessagesReceived() int64 { return b.received.Load() }

// MessagesSent returns the number of successful publishes so far.
func (b *BaseConnection) MessagesSent() int64 { return b.sent.Load() }

// PutInput stores or replaces an input configuration.
func (b *BaseConnection) PutInput(cfg InputConfiguration) {
	b.mu.Lock()
	b.inputs[cfg.ID] = cfg
	b.mu.Unlock()
}

// DropInput removes an input configuration and returns it, if present.
func (b *BaseConnection) DropInput(id string) (InputConfiguration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[id]
	if ok {
		delete(b.inputs, id)
	}
	return in, ok
}

// Input returns the input configuration with the given id.
func (b *BaseConnection) Input(id string) (InputConfiguration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	in, ok := b.inputs[id]
	return in, ok
}

// Inputs returns a snapshot of all input configurations.
func (b *BaseConnection) Inputs() []InputConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]InputConfiguration, 0, len(b.inputs))
	for _, in := range b.inputs {
		out = append(out, in)
	}
	return out
}

// MatchingInputs returns the enabled inputs whose topic filter matches the
// wire topic. A message can match more than one input; every match gets its
// own DataReceived emission.
func (b *BaseConnection) MatchingInputs(topic string) []InputConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var matched []InputConfiguration
	for _, in := range b.inputs {
		if !in.IsEnabled {
			continue
		}
		if MatchTopicFilter(in.TopicFilter, topic) {
			matched = append(matched, in)
		}
	}
	return matched
}

// PutOutput stores or replaces an output configuration.
func (b *BaseConnection) PutOutput(cfg OutputConfiguration) {
	b.mu.Lock()
	b.outputs[cfg.ID] = cfg
	b.mu.Unlock()
}

// DropOutput removes an output configuration and returns it, if present.
func (b *BaseConnection) DropOutput(id string) (OutputConfiguration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, ok := b.outputs[id]
	if ok {
		delete(b.outputs, id)
	}
	return out, ok
}

// Output returns the output configuration with the given id.
func (b *BaseConnection) Output(id string) (OutputConfiguration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out, ok := b.outputs[id]
	return out, ok
}

// Outputs returns a snapshot of all output configurations.
func (b *BaseConnection) Outputs() []OutputConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]OutputConfiguration, 0, len(b.outputs))
	for _, o := range b.outputs {
		out = append(out, o)
	}
	return out
}

// OutputsForTopic returns the enabled outputs that cover the topic: either
// an empty filter list (match all) or at least one matching filter.
func (b *BaseConnection) OutputsForTopic(topic string) []OutputConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var matched []OutputConfiguration
	for _, o := range b.outputs {
		if !o.IsEnabled {
			continue
		}
		if len(o.TopicFilters) == 0 {
			matched = append(matched, o)
			continue
		}
		for _, f := range o.TopicFilters {
			if MatchTopicFilter(f, topic) {
				matched = append(matched, o)
				break
			}
		}
	}
	return matched
}
