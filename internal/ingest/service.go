package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/bus"
	"unshub/internal/cache"
	"unshub/internal/connection"
	"unshub/internal/queue"
	"unshub/internal/topics"
	"unshub/pkg/logging"
)

const subscriberID = "ingest"

// Deps are the collaborators of the ingestion service.
type Deps struct {
	Manager    *connection.Manager
	Repository *topics.Repository
	Discovery  *topics.DiscoveryService
	Mapper     *automap.Mapper
	Cache      *cache.Manager
	Events     *bus.Bus
	Realtime   api.RealtimeStore
	Historical api.HistoricalStore
}

// Service runs the intake pipeline: data points arriving on acquired
// connections are queued, normalised, bound to their topic configuration
// (auto-mapping or discovering unknown topics on the way), persisted, and
// announced on the bus.
type Service struct {
	deps Deps
	proc *queue.Processor[api.DataPoint]

	mu       sync.Mutex
	handles  []*connection.Handle
	priority map[string]bool // connection id + "/" + input id
}

// New creates the service with its queue processor; Start launches it.
func New(deps Deps, queueOpts queue.Options) *Service {
	s := &Service{deps: deps, priority: make(map[string]bool)}
	s.proc = queue.New("ingest", queueOpts, s.process)
	return s
}

// Start launches the queue and acquires every enabled connection. Failures
// are collected; connections that did come up keep running.
func (s *Service) Start(ctx context.Context, configs []connection.ConnectionConfiguration) error {
	s.proc.Start(ctx)

	var errs []error
	for _, cfg := range configs {
		if !cfg.IsEnabled {
			continue
		}
		if err := s.attach(ctx, cfg); err != nil {
			logging.Error("Ingest", err, "Connection %s not started", cfg.ID)
			errs = append(errs, fmt.Errorf("connection %s: %w", cfg.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) attach(ctx context.Context, cfg connection.ConnectionConfiguration) error {
	handle, err := s.deps.Manager.Acquire(ctx, subscriberID, cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handles = append(s.handles, handle)
	for _, in := range cfg.Inputs {
		if in.Priority {
			s.priority[cfg.ID+"/"+in.ID] = true
		}
	}
	s.mu.Unlock()

	connectionID := cfg.ID
	handle.OnData(func(dp api.DataPoint, inputID string) {
		s.mu.Lock()
		priority := s.priority[connectionID+"/"+inputID]
		s.mu.Unlock()
		if err := s.proc.Enqueue(context.Background(), dp, priority); err != nil {
			logging.Warn("Ingest", "Dropping data point for %s: %v", dp.Topic, err)
		}
	})
	return nil
}

// Stop releases the connections and drains the queue.
func (s *Service) Stop() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()
	for _, h := range handles {
		s.deps.Manager.Release(h)
	}
	s.proc.Stop()
}

// Ingest feeds a data point into the pipeline directly. Internal producers
// and tests use it; connection intake goes through the same queue.
func (s *Service) Ingest(ctx context.Context, dp api.DataPoint, priority bool) error {
	return s.proc.Enqueue(ctx, dp, priority)
}

// Pause suspends queue processing; enqueued items are retained.
func (s *Service) Pause() { s.proc.Pause() }

// Resume restarts queue processing.
func (s *Service) Resume() { s.proc.Resume() }

// Statistics exposes the queue counters.
func (s *Service) Statistics() queue.Statistics { return s.proc.GetStatistics() }

// process is the per-item pipeline run on the queue lanes.
func (s *Service) process(ctx context.Context, dp api.DataPoint) error {
	dp.NormalizeTimestamp()
	if dp.Quality == "" {
		dp.Quality = api.QualityGood
	}

	tc, err := s.resolve(ctx, dp)
	if err != nil {
		return err
	}
	dp.Path = tc.Path
	dp.UNSName = tc.UNSName

	if err := s.deps.Realtime.Store(ctx, dp); err != nil {
		// The point still reaches subscribers; only persistence failed.
		logging.Warn("Ingest", "Realtime store rejected %s: %v", dp.Topic, err)
	}
	if s.deps.Historical != nil {
		if err := s.deps.Historical.Store(ctx, dp); err != nil {
			logging.Warn("Ingest", "Historical store rejected %s: %v", dp.Topic, err)
		}
	}

	s.deps.Events.Publish(ctx, api.TopicDataUpdatedEvent{
		Topic:     dp.Topic,
		Point:     dp,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// resolve binds the data point to its topic configuration: cache first,
// then auto-mapping, then the discovery fallback that registers the topic
// unmapped and unverified.
func (s *Service) resolve(ctx context.Context, dp api.DataPoint) (api.TopicConfiguration, error) {
	entry, err := s.deps.Cache.Get(ctx, dp.Topic)
	if err == nil {
		return entry.Config, nil
	}
	if !api.IsNotFound(err) {
		return api.TopicConfiguration{}, err
	}

	source := sourceTypeOf(dp)
	if s.deps.Mapper != nil {
		if tc, err := s.deps.Mapper.Map(ctx, dp.Topic, source); err == nil {
			return tc, nil
		}
	}
	return s.deps.Discovery.Discover(ctx, dp.Topic, source)
}

func sourceTypeOf(dp api.DataPoint) api.SourceType {
	switch api.SourceType(dp.SourceSystem) {
	case api.SourceMQTT, api.SourceSocketIO, api.SourceNATS:
		return api.SourceType(dp.SourceSystem)
	default:
		return api.SourceInternal
	}
}
