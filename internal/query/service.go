package query

import (
	"context"
	"sort"
	"time"

	"unshub/internal/api"
	"unshub/internal/cache"
	"unshub/internal/connection"
	"unshub/internal/hierarchy"
	"unshub/internal/queue"
	"unshub/internal/topics"
)

// QueueStats exposes the ingestion queue counters to the status surface
// without coupling the query service to the pipeline.
type QueueStats interface {
	Statistics() queue.Statistics
}

// Deps are the read-side collaborators of the query service.
type Deps struct {
	Repository *topics.Repository
	Registry   *hierarchy.Registry
	Cache      *cache.Manager
	Manager    *connection.Manager
	Realtime   api.RealtimeStore
	Historical api.HistoricalStore
	Queue      QueueStats
}

// SystemStatus is the aggregate health snapshot.
type SystemStatus struct {
	UptimeSeconds   int64                         `json:"uptimeSeconds"`
	TopicCount      int                           `json:"topicCount"`
	VerifiedCount   int                           `json:"verifiedCount"`
	UnverifiedCount int                           `json:"unverifiedCount"`
	Connections     []connection.ConnectionStatus `json:"connections"`
	Cache           cache.Stats                   `json:"cache"`
	Queue           queue.Statistics              `json:"queue"`
}

// Aggregate selects the reduction applied per downsampling bucket.
type Aggregate string

const (
	AggregateAvg   Aggregate = "avg"
	AggregateMin   Aggregate = "min"
	AggregateMax   Aggregate = "max"
	AggregateFirst Aggregate = "first"
	AggregateLast  Aggregate = "last"
)

// Service is the read-only query surface over the hub's state.
type Service struct {
	deps    Deps
	started time.Time
}

// New creates the query service.
func New(deps Deps) *Service {
	return &Service{deps: deps, started: time.Now().UTC()}
}

// ListTopics returns every registered topic configuration.
func (s *Service) ListTopics() []api.TopicConfiguration {
	return s.deps.Repository.All()
}

// GetTopic returns the configuration for a topic string.
func (s *Service) GetTopic(topic string) (api.TopicConfiguration, error) {
	tc, ok := s.deps.Repository.GetByTopic(topic)
	if !ok {
		return api.TopicConfiguration{}, api.NewTopicNotFoundError(topic)
	}
	return tc, nil
}

// TopicsByNamespace returns the topics placed at or under the namespace path.
func (s *Service) TopicsByNamespace(nsPath string) []api.TopicConfiguration {
	return s.deps.Repository.ByNamespace(nsPath)
}

// SearchTopics matches topics by substring or glob pattern.
func (s *Service) SearchTopics(pattern string) []api.TopicConfiguration {
	return s.deps.Repository.Search(pattern)
}

// TopicsBySourceType returns the topics ingested from one source kind.
func (s *Service) TopicsBySourceType(source api.SourceType) []api.TopicConfiguration {
	return s.deps.Repository.BySource(source)
}

// UnverifiedTopics returns the topics awaiting operator confirmation.
func (s *Service) UnverifiedTopics() []api.TopicConfiguration {
	return s.deps.Repository.UnverifiedOnly()
}

// ActiveTopics returns the topics that received a value within the window,
// newest first.
func (s *Service) ActiveTopics(ctx context.Context, window time.Duration) ([]api.TopicConfiguration, error) {
	cutoff := time.Now().UTC().Add(-window)
	var active []struct {
		tc api.TopicConfiguration
		at time.Time
	}
	for _, tc := range s.deps.Repository.All() {
		dp, err := s.deps.Realtime.GetLatest(ctx, tc.Topic)
		if err != nil {
			if api.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if dp.Timestamp.Before(cutoff) {
			continue
		}
		active = append(active, struct {
			tc api.TopicConfiguration
			at time.Time
		}{tc, dp.Timestamp})
	}
	sort.Slice(active, func(i, j int) bool { return active[i].at.After(active[j].at) })
	out := make([]api.TopicConfiguration, len(active))
	for i, a := range active {
		out[i] = a.tc
	}
	return out, nil
}

// NamespaceStructure returns the composed hierarchy/namespace forest.
func (s *Service) NamespaceStructure() []*hierarchy.NSTreeNode {
	return s.deps.Registry.NamespaceStructure()
}

// Status returns the aggregate system snapshot.
func (s *Service) Status() SystemStatus {
	all := s.deps.Repository.All()
	verified := 0
	for _, tc := range all {
		if tc.IsVerified {
			verified++
		}
	}
	st := SystemStatus{
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		TopicCount:      len(all),
		VerifiedCount:   verified,
		UnverifiedCount: len(all) - verified,
	}
	if s.deps.Manager != nil {
		st.Connections = s.deps.Manager.Statuses()
	}
	if s.deps.Cache != nil {
		st.Cache = s.deps.Cache.GetStatistics()
	}
	if s.deps.Queue != nil {
		st.Queue = s.deps.Queue.Statistics()
	}
	return st
}

// LatestValue returns the newest stored value for a topic: the cache entry
// when it carries one, otherwise the realtime store.
func (s *Service) LatestValue(ctx context.Context, topic string) (*api.DataPoint, error) {
	if s.deps.Cache != nil {
		if entry, err := s.deps.Cache.Get(ctx, topic); err == nil && entry.Latest != nil {
			return entry.Latest, nil
		}
	}
	return s.deps.Realtime.GetLatest(ctx, topic)
}

// LatestByPath returns the newest values of every topic under a path prefix.
func (s *Service) LatestByPath(ctx context.Context, pathPrefix string) ([]api.DataPoint, error) {
	return s.deps.Realtime.GetLatestByPath(ctx, pathPrefix)
}

// History returns the topic's series in [from, to], downsampled to at most
// maxPoints buckets reduced by the aggregate (0 means no downsampling).
func (s *Service) History(ctx context.Context, topic string, from, to time.Time, agg Aggregate, maxPoints int) ([]api.DataPoint, error) {
	points, err := s.deps.Historical.GetHistory(ctx, topic, from, to)
	if err != nil {
		return nil, err
	}
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points, nil
	}
	return downsample(points, agg, maxPoints), nil
}

// downsample splits the series into maxPoints equal-count buckets and
// reduces each one. Non-numeric buckets always reduce to their last point.
func downsample(points []api.DataPoint, agg Aggregate, maxPoints int) []api.DataPoint {
	if agg == "" {
		agg = AggregateAvg
	}
	out := make([]api.DataPoint, 0, maxPoints)
	size := float64(len(points)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		start := int(float64(i) * size)
		end := int(float64(i+1) * size)
		if end > len(points) {
			end = len(points)
		}
		if start >= end {
			continue
		}
		out = append(out, reduce(points[start:end], agg))
	}
	return out
}

func reduce(bucket []api.DataPoint, agg Aggregate) api.DataPoint {
	switch agg {
	case AggregateFirst:
		return bucket[0]
	case AggregateLast:
		return bucket[len(bucket)-1]
	}

	values := make([]float64, 0, len(bucket))
	for _, dp := range bucket {
		if v, ok := numeric(dp.Value); ok {
			values = append(values, v)
		}
	}
	if len(values) != len(bucket) {
		return bucket[len(bucket)-1]
	}

	result := bucket[len(bucket)-1]
	switch agg {
	case AggregateMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		result.Value = min
	case AggregateMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		result.Value = max
	default:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		result.Value = sum / float64(len(values))
	}
	return result
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
