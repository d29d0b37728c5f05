package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
)

// MemoryHistoricalStore keeps per-topic series in memory, oldest first.
// It exists for single-process deployments and tests; production setups
// plug a real historian behind the same interface.
type MemoryHistoricalStore struct {
	mu     sync.RWMutex
	series map[string][]api.DataPoint
}

// NewMemoryHistoricalStore creates an empty historical store.
func NewMemoryHistoricalStore() *MemoryHistoricalStore {
	return &MemoryHistoricalStore{series: make(map[string][]api.DataPoint)}
}

// Store appends the data point to its topic's series.
func (s *MemoryHistoricalStore) Store(ctx context.Context, dp api.DataPoint) error {
	if dp.Topic == "" {
		return api.NewValidationError("data point", "topic is empty")
	}
	dp.NormalizeTimestamp()
	key := strings.ToLower(dp.Topic)
	s.mu.Lock()
	s.series[key] = append(s.series[key], dp)
	s.mu.Unlock()
	return nil
}

// GetHistory returns points for the topic in [from, to], oldest first.
func (s *MemoryHistoricalStore) GetHistory(ctx context.Context, topic string, from, to time.Time) ([]api.DataPoint, error) {
	s.mu.RLock()
	points := s.series[strings.ToLower(topic)]
	out := filterWindow(points, from, to)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// GetHistoryByPath returns points for all topics under pathPrefix in
// [from, to], oldest first.
func (s *MemoryHistoricalStore) GetHistoryByPath(ctx context.Context, pathPrefix string, from, to time.Time) ([]api.DataPoint, error) {
	s.mu.RLock()
	var out []api.DataPoint
	for _, points := range s.series {
		for _, dp := range filterWindow(points, from, to) {
			full := dp.Path.FullPath()
			if full == pathPrefix || strings.HasPrefix(full, pathPrefix+"/") {
				out = append(out, dp)
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Archive drops points older than before and returns how many were removed.
func (s *MemoryHistoricalStore) Archive(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, points := range s.series {
		kept := points[:0]
		for _, dp := range points {
			if dp.Timestamp.Before(before) {
				removed++
				continue
			}
			kept = append(kept, dp)
		}
		if len(kept) == 0 {
			delete(s.series, key)
			continue
		}
		s.series[key] = kept
	}
	return removed, nil
}

func filterWindow(points []api.DataPoint, from, to time.Time) []api.DataPoint {
	var out []api.DataPoint
	for _, dp := range points {
		if dp.Timestamp.Before(from) || dp.Timestamp.After(to) {
			continue
		}
		out = append(out, dp)
	}
	return out
}

// NoopHistoricalStore discards everything; it is wired when historical
// storage is disabled globally.
type NoopHistoricalStore struct{}

// NewNoopHistoricalStore creates the disabled historical store.
func NewNoopHistoricalStore() *NoopHistoricalStore { return &NoopHistoricalStore{} }

func (NoopHistoricalStore) Store(ctx context.Context, dp api.DataPoint) error { return nil }

func (NoopHistoricalStore) GetHistory(ctx context.Context, topic string, from, to time.Time) ([]api.DataPoint, error) {
	return nil, nil
}

func (NoopHistoricalStore) GetHistoryByPath(ctx context.Context, pathPrefix string, from, to time.Time) ([]api.DataPoint, error) {
	return nil, nil
}

func (NoopHistoricalStore) Archive(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}
