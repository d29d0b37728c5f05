package connection

import (
	"fmt"
	"sort"
	"sync"
)

// Descriptor is the self-description of a connection type: identity, the
// schemas its settings are edited against, and the factory producing
// instances.
type Descriptor interface {
	// TypeID is the stable identifier stored in configurations (e.g. "mqtt").
	TypeID() string

	// DisplayName is the human-readable type name.
	DisplayName() string

	// Description summarises what the connection type talks to.
	Description() string

	// ConnectionSchema describes the connection-level settings.
	ConnectionSchema() ConfigSchema

	// InputSchema describes per-input settings.
	InputSchema() ConfigSchema

	// OutputSchema describes per-output settings.
	OutputSchema() ConfigSchema

	// DefaultConfiguration returns a starting configuration for new instances.
	DefaultConfiguration() ConnectionConfiguration

	// New creates an uninitialised connection instance.
	New() Connection
}

// Registry maps connection type ids to their descriptors. Types register at
// startup; the manager resolves configurations through the registry.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Descriptor
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Descriptor)}
}

// Register adds a connection type. Registering the same type id twice is a
// programming error and fails.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[d.TypeID()]; exists {
		return fmt.Errorf("connection type %s: %w", d.TypeID(), errTypeRegistered)
	}
	r.types[d.TypeID()] = d
	return nil
}

var errTypeRegistered = fmt.Errorf("type already registered")

// Get returns the descriptor for a type id.
func (r *Registry) Get(typeID string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typeID]
	return d, ok
}

// Types returns all registered descriptors sorted by type id.
func (r *Registry) Types() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID() < out[j].TypeID() })
	return out
}
