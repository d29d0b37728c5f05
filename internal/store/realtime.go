package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"unshub/internal/api"
)

// MemoryRealtimeStore keeps the latest data point per topic in memory.
// Topic keys are case-insensitive to match the topic repository.
type MemoryRealtimeStore struct {
	mu     sync.RWMutex
	latest map[string]api.DataPoint
}

// NewMemoryRealtimeStore creates an empty realtime store.
func NewMemoryRealtimeStore() *MemoryRealtimeStore {
	return &MemoryRealtimeStore{latest: make(map[string]api.DataPoint)}
}

// Store upserts the latest value for the data point's topic.
func (s *MemoryRealtimeStore) Store(ctx context.Context, dp api.DataPoint) error {
	if dp.Topic == "" {
		return api.NewValidationError("data point", "topic is empty")
	}
	dp.NormalizeTimestamp()
	s.mu.Lock()
	s.latest[strings.ToLower(dp.Topic)] = dp
	s.mu.Unlock()
	return nil
}

// GetLatest returns the latest data point for the topic.
func (s *MemoryRealtimeStore) GetLatest(ctx context.Context, topic string) (*api.DataPoint, error) {
	s.mu.RLock()
	dp, ok := s.latest[strings.ToLower(topic)]
	s.mu.RUnlock()
	if !ok {
		return nil, api.NewTopicNotFoundError(topic)
	}
	return &dp, nil
}

// GetLatestByPath returns the latest points of all topics whose hierarchical
// full path equals or descends from pathPrefix, sorted by topic.
func (s *MemoryRealtimeStore) GetLatestByPath(ctx context.Context, pathPrefix string) ([]api.DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.DataPoint
	for _, dp := range s.latest {
		full := dp.Path.FullPath()
		if full == pathPrefix || strings.HasPrefix(full, pathPrefix+"/") {
			out = append(out, dp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// Delete removes the stored value for the topic.
func (s *MemoryRealtimeStore) Delete(ctx context.Context, topic string) error {
	s.mu.Lock()
	delete(s.latest, strings.ToLower(topic))
	s.mu.Unlock()
	return nil
}

// Count returns the number of topics with a stored latest value.
func (s *MemoryRealtimeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
