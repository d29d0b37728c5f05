package topics

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/pkg/logging"

	"github.com/google/uuid"
)

// Repository is the in-process registry of known topics, verified or not.
// One active configuration exists per (topic, sourceType) pair; topic strings
// match case-insensitively. Mutations are announced on the event bus.
type Repository struct {
	mu    sync.RWMutex
	byKey map[string]*api.TopicConfiguration // lower(topic)|sourceType
	byID  map[string]*api.TopicConfiguration

	bus *bus.Bus
}

// NewRepository creates an empty repository publishing mutations on b.
func NewRepository(b *bus.Bus) *Repository {
	return &Repository{
		byKey: make(map[string]*api.TopicConfiguration),
		byID:  make(map[string]*api.TopicConfiguration),
		bus:   b,
	}
}

func key(topic string, source api.SourceType) string {
	return strings.ToLower(topic) + "|" + string(source)
}

// Create registers a new topic configuration and publishes TopicAddedEvent.
// A second configuration for the same (topic, sourceType) pair is rejected.
func (r *Repository) Create(ctx context.Context, tc api.TopicConfiguration) (api.TopicConfiguration, error) {
	if tc.Topic == "" {
		return api.TopicConfiguration{}, api.NewValidationError("topic configuration", "topic is empty")
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	tc.CreatedAt = now
	tc.ModifiedAt = now

	r.mu.Lock()
	k := key(tc.Topic, tc.SourceType)
	if _, exists := r.byKey[k]; exists {
		r.mu.Unlock()
		return api.TopicConfiguration{}, fmt.Errorf("topic %s (%s): %w", tc.Topic, tc.SourceType, api.ErrAlreadyExists)
	}
	stored := tc
	r.byKey[k] = &stored
	r.byID[tc.ID] = &stored
	r.mu.Unlock()

	logging.Debug("TopicRepository", "Registered topic %s (%s) at %s", tc.Topic, tc.SourceType, tc.NSPath)
	r.bus.Publish(ctx, api.TopicAddedEvent{Config: tc, Timestamp: now})
	return tc, nil
}

// Update replaces an existing configuration, matched by ID, and publishes
// TopicConfigurationUpdatedEvent.
func (r *Repository) Update(ctx context.Context, tc api.TopicConfiguration) (api.TopicConfiguration, error) {
	r.mu.Lock()
	existing, ok := r.byID[tc.ID]
	if !ok {
		r.mu.Unlock()
		return api.TopicConfiguration{}, api.NewTopicNotFoundError(tc.Topic)
	}
	oldKey := key(existing.Topic, existing.SourceType)
	newKey := key(tc.Topic, tc.SourceType)
	if oldKey != newKey {
		if _, clash := r.byKey[newKey]; clash {
			r.mu.Unlock()
			return api.TopicConfiguration{}, fmt.Errorf("topic %s (%s): %w", tc.Topic, tc.SourceType, api.ErrAlreadyExists)
		}
		delete(r.byKey, oldKey)
	}
	tc.CreatedAt = existing.CreatedAt
	tc.ModifiedAt = time.Now().UTC().Truncate(time.Millisecond)
	stored := tc
	r.byKey[newKey] = &stored
	r.byID[tc.ID] = &stored
	r.mu.Unlock()

	r.bus.Publish(ctx, api.TopicConfigurationUpdatedEvent{Config: tc, Timestamp: tc.ModifiedAt})
	return tc, nil
}

// Delete removes the configuration for (topic, sourceType) and publishes
// TopicRemovedEvent.
func (r *Repository) Delete(ctx context.Context, topic string, source api.SourceType) error {
	r.mu.Lock()
	k := key(topic, source)
	existing, ok := r.byKey[k]
	if !ok {
		r.mu.Unlock()
		return api.NewTopicNotFoundError(topic)
	}
	delete(r.byKey, k)
	delete(r.byID, existing.ID)
	r.mu.Unlock()

	r.bus.Publish(ctx, api.TopicRemovedEvent{
		Topic:      existing.Topic,
		SourceType: existing.SourceType,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	})
	return nil
}

// DeleteByID removes a configuration by its ID.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	r.mu.RLock()
	existing, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return api.NewTopicNotFoundError(id)
	}
	return r.Delete(ctx, existing.Topic, existing.SourceType)
}

// GetByTopicAndSource returns the configuration for the exact pair.
func (r *Repository) GetByTopicAndSource(topic string, source api.SourceType) (api.TopicConfiguration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tc, ok := r.byKey[key(topic, source)]; ok {
		return *tc, true
	}
	return api.TopicConfiguration{}, false
}

// GetByTopic returns a configuration matching the topic string under any
// source type. Verified configurations win over unverified ones; remaining
// ties resolve by source type for determinism.
func (r *Repository) GetByTopic(topic string) (api.TopicConfiguration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var candidates []*api.TopicConfiguration
	lower := strings.ToLower(topic)
	for k, tc := range r.byKey {
		if strings.HasPrefix(k, lower+"|") {
			candidates = append(candidates, tc)
		}
	}
	if len(candidates) == 0 {
		return api.TopicConfiguration{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IsVerified != candidates[j].IsVerified {
			return candidates[i].IsVerified
		}
		return candidates[i].SourceType < candidates[j].SourceType
	})
	return *candidates[0], true
}

// Lookup adapts the repository to the cache's read-through source.
func (r *Repository) Lookup(topic string) (api.TopicConfiguration, bool) {
	return r.GetByTopic(topic)
}

// GetByID returns the configuration with the given ID.
func (r *Repository) GetByID(id string) (api.TopicConfiguration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tc, ok := r.byID[id]; ok {
		return *tc, true
	}
	return api.TopicConfiguration{}, false
}

// All returns every registered configuration sorted by topic.
func (r *Repository) All() []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.TopicConfiguration, 0, len(r.byID))
	for _, tc := range r.byID {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// ByNamespace returns configurations whose NS path equals the prefix or
// descends from it.
func (r *Repository) ByNamespace(prefix string) []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []api.TopicConfiguration
	for _, tc := range r.byID {
		if tc.NSPath == prefix || strings.HasPrefix(tc.NSPath, prefix+"/") {
			out = append(out, *tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// BySource returns configurations ingested from the given source type.
func (r *Repository) BySource(source api.SourceType) []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []api.TopicConfiguration
	for _, tc := range r.byID {
		if tc.SourceType == source {
			out = append(out, *tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// UnverifiedOnly returns configurations awaiting operator triage.
func (r *Repository) UnverifiedOnly() []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []api.TopicConfiguration
	for _, tc := range r.byID {
		if !tc.IsVerified {
			out = append(out, *tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Search returns configurations whose topic or UNS name matches the pattern.
// Patterns containing glob metacharacters use path.Match semantics; plain
// strings match as case-insensitive substrings.
func (r *Repository) Search(pattern string) []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	isGlob := strings.ContainsAny(pattern, "*?[")
	lower := strings.ToLower(pattern)

	var out []api.TopicConfiguration
	for _, tc := range r.byID {
		matched := false
		if isGlob {
			if ok, err := path.Match(lower, strings.ToLower(tc.Topic)); err == nil && ok {
				matched = true
			}
		} else {
			matched = strings.Contains(strings.ToLower(tc.Topic), lower) ||
				strings.Contains(strings.ToLower(tc.UNSName), lower)
		}
		if matched {
			out = append(out, *tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// CountByNamespace implements hierarchy.TopicSource.
func (r *Repository) CountByNamespace(nsPath string) int {
	return len(r.ByNamespace(nsPath))
}

// Count returns the number of registered configurations.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
