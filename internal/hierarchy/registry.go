package hierarchy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/pkg/logging"

	"github.com/google/uuid"
)

// TopicSource is the view of the topic repository the registry needs for
// activation validation and namespace deletion checks. It is set after
// construction to keep the dependency graph acyclic.
type TopicSource interface {
	// All returns every registered topic configuration.
	All() []api.TopicConfiguration

	// CountByNamespace returns how many topics reference the NS path prefix.
	CountByNamespace(nsPath string) int
}

// IngestionPauser lets the registry briefly pause inbound processing while a
// configuration swap commits. Optional.
type IngestionPauser interface {
	Pause()
	Resume()
}

// Registry owns the hierarchy configurations and namespace nodes and is the
// authority for path parsing, validation and topic placement checks.
type Registry struct {
	mu         sync.RWMutex
	configs    map[string]*HierarchyConfiguration
	activeID   string
	namespaces map[string]*NamespaceNode

	topics TopicSource
	pauser IngestionPauser
}

// NewRegistry creates a registry seeded with the system-defined default
// configuration, already active.
func NewRegistry() *Registry {
	def := DefaultConfiguration()
	return &Registry{
		configs:    map[string]*HierarchyConfiguration{def.ID: def},
		activeID:   def.ID,
		namespaces: make(map[string]*NamespaceNode),
	}
}

// SetTopicSource wires the topic repository view used by Activate and
// DeleteNamespace. Must be called before those operations are used.
func (r *Registry) SetTopicSource(topics TopicSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = topics
}

// SetIngestionPauser wires the optional hook that pauses the queue processor
// around an activation commit.
func (r *Registry) SetIngestionPauser(p IngestionPauser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauser = p
}

// ActiveConfiguration returns the currently active hierarchy template.
func (r *Registry) ActiveConfiguration() *HierarchyConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[r.activeID]
}

// Configurations returns all known configurations.
func (r *Registry) Configurations() []*HierarchyConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*HierarchyConfiguration, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddConfiguration registers a new, inactive configuration after validation.
func (r *Registry) AddConfiguration(cfg *HierarchyConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if _, exists := r.configs[cfg.ID]; exists {
		return fmt.Errorf("hierarchy configuration %s: %w", cfg.ID, api.ErrAlreadyExists)
	}
	cfg.IsActive = false
	r.configs[cfg.ID] = cfg
	return nil
}

// CreatePathFromString splits s by "/" and assigns values to the ordered
// levels of the active configuration. Extra segments fail with a
// ValidationError.
func (r *Registry) CreatePathFromString(s string) (api.HierarchicalPath, error) {
	return parsePath(r.ActiveConfiguration(), s)
}

// ValidatePath checks the path against the active configuration.
func (r *Registry) ValidatePath(path api.HierarchicalPath) error {
	return validatePath(r.ActiveConfiguration(), path)
}

// ValidateTopicMapping returns a TopicNotAllowedError if the deepest
// populated level of the path has allowTopics=false.
func (r *Registry) ValidateTopicMapping(path api.HierarchicalPath) error {
	return validateTopicMapping(r.ActiveConfiguration(), path)
}

// Activate swaps the active configuration to configID. Before committing it
// re-validates every existing topic configuration and every namespace node
// against the proposed template; any offender rejects the swap. The commit
// itself is a single atomic assignment, with ingestion paused around it when
// a pauser is wired.
func (r *Registry) Activate(configID string) error {
	r.mu.Lock()
	proposed, ok := r.configs[configID]
	if !ok {
		r.mu.Unlock()
		return api.NewHierarchyConfigNotFoundError(configID)
	}
	if configID == r.activeID {
		r.mu.Unlock()
		return nil
	}
	topics := r.topics
	pauser := r.pauser
	namespaces := make([]*NamespaceNode, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		namespaces = append(namespaces, ns)
	}
	r.mu.Unlock()

	if err := proposed.Validate(); err != nil {
		return err
	}

	var offenders []string
	for _, ns := range namespaces {
		if err := validatePath(proposed, ns.HierarchicalPath); err != nil {
			offenders = append(offenders, fmt.Sprintf("namespace %s: %v", ns.FullPath(), err))
		}
	}
	if topics != nil {
		for _, tc := range topics.All() {
			if err := validatePath(proposed, tc.Path); err != nil {
				offenders = append(offenders, fmt.Sprintf("topic %s: %v", tc.Topic, err))
				continue
			}
			if !tc.Path.IsEmpty() {
				if err := validateTopicMapping(proposed, tc.Path); err != nil {
					offenders = append(offenders, fmt.Sprintf("topic %s: %v", tc.Topic, err))
				}
			}
		}
	}
	if len(offenders) > 0 {
		return api.NewValidationError("hierarchy activation", offenders...)
	}

	if pauser != nil {
		pauser.Pause()
		defer pauser.Resume()
	}

	r.mu.Lock()
	if old, ok := r.configs[r.activeID]; ok {
		old.IsActive = false
	}
	proposed.IsActive = true
	r.activeID = configID
	r.mu.Unlock()

	logging.Info("Hierarchy", "Activated hierarchy configuration %s (%s)", proposed.Name, configID)
	return nil
}

// CreateNamespace registers a namespace node after validating its placement
// against the active configuration.
func (r *Registry) CreateNamespace(ns *NamespaceNode) error {
	if ns.Name == "" {
		return api.NewValidationError("namespace", "name is empty")
	}
	if err := r.ValidatePath(ns.HierarchicalPath); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	full := ns.FullPath()
	for _, existing := range r.namespaces {
		if existing.FullPath() == full {
			return fmt.Errorf("namespace %s: %w", full, api.ErrAlreadyExists)
		}
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now().UTC()
	}
	ns.IsActive = true
	r.namespaces[ns.ID] = ns
	logging.Debug("Hierarchy", "Created namespace %s", full)
	return nil
}

// DeleteNamespace removes a namespace node. Deletion is refused while any
// topic configuration still references the namespace path.
func (r *Registry) DeleteNamespace(id string) error {
	r.mu.Lock()
	ns, ok := r.namespaces[id]
	topics := r.topics
	r.mu.Unlock()
	if !ok {
		return api.NewNamespaceNotFoundError(id)
	}
	if topics != nil && topics.CountByNamespace(ns.FullPath()) > 0 {
		return fmt.Errorf("namespace %s: %w", ns.FullPath(), api.ErrNamespaceInUse)
	}
	r.mu.Lock()
	delete(r.namespaces, id)
	r.mu.Unlock()
	return nil
}

// Namespaces returns all registered namespace nodes sorted by full path.
func (r *Registry) Namespaces() []*NamespaceNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NamespaceNode, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath() < out[j].FullPath() })
	return out
}

// FindNamespaceByPath returns the namespace whose full path matches nsPath.
func (r *Registry) FindNamespaceByPath(nsPath string) (*NamespaceNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ns := range r.namespaces {
		if ns.FullPath() == nsPath {
			return ns, true
		}
	}
	return nil, false
}

// ResolveNSPath resolves a namespace navigation path into its hierarchical
// part and, when one is registered, the namespace node it lands in. When no
// registered namespace matches, the whole path is parsed as a hierarchical
// path (the topic sits directly on a hierarchy level).
func (r *Registry) ResolveNSPath(nsPath string) (api.HierarchicalPath, *NamespaceNode, error) {
	r.mu.RLock()
	var best *NamespaceNode
	for _, ns := range r.namespaces {
		full := ns.FullPath()
		if nsPath == full || strings.HasPrefix(nsPath, full+"/") {
			if best == nil || len(ns.FullPath()) > len(best.FullPath()) {
				best = ns
			}
		}
	}
	r.mu.RUnlock()

	if best != nil {
		return best.HierarchicalPath, best, nil
	}
	path, err := r.CreatePathFromString(nsPath)
	if err != nil {
		return api.HierarchicalPath{}, nil, err
	}
	if err := r.ValidatePath(path); err != nil {
		return api.HierarchicalPath{}, nil, err
	}
	return path, nil, nil
}

// EnsureNamespace materialises a namespace for nsPath if none matches yet:
// the longest parseable-and-valid prefix of nsPath becomes the hierarchical
// placement and the remainder the namespace name. Returns the existing or
// created node, or nil when the whole path resolves to hierarchy levels.
func (r *Registry) EnsureNamespace(nsPath string, autoVerify bool) (*NamespaceNode, error) {
	if ns, ok := r.FindNamespaceByPath(nsPath); ok {
		return ns, nil
	}

	segments := strings.Split(nsPath, "/")
	for cut := len(segments) - 1; cut >= 0; cut-- {
		prefix := strings.Join(segments[:cut], "/")
		path, err := r.CreatePathFromString(prefix)
		if err != nil {
			continue
		}
		if err := r.ValidatePath(path); err != nil {
			continue
		}
		name := strings.Join(segments[cut:], "/")
		if name == "" {
			return nil, nil
		}
		ns := &NamespaceNode{
			Name:             name,
			HierarchicalPath: path,
			AutoVerifyTopics: autoVerify,
		}
		if err := r.CreateNamespace(ns); err != nil {
			return nil, err
		}
		return ns, nil
	}
	return nil, api.NewValidationError("namespace path", fmt.Sprintf("no valid hierarchical prefix in %q", nsPath))
}
