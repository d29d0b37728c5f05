package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/bus"
	"unshub/internal/cache"
	"unshub/internal/hierarchy"
	"unshub/internal/queue"
	"unshub/internal/store"
	"unshub/internal/topics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	service  *Service
	repo     *topics.Repository
	registry *hierarchy.Registry
	realtime *store.MemoryRealtimeStore
	events   *bus.Bus
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	events := bus.New()
	repo := topics.NewRepository(events)

	registry := hierarchy.NewRegistry()
	require.NoError(t, registry.AddConfiguration(&hierarchy.HierarchyConfiguration{
		ID:   "test",
		Name: "test",
		Nodes: []hierarchy.HierarchyNode{
			{Name: "Enterprise", Order: 0, Required: true},
			{Name: "Site", Order: 1, AllowTopics: true},
		},
	}))
	require.NoError(t, registry.Activate("test"))

	mapper, err := automap.New(automap.DefaultConfig(), registry, repo, events)
	require.NoError(t, err)

	cm := cache.NewManager(repo, cache.DefaultOptions())
	realtime := store.NewMemoryRealtimeStore()

	svc := New(Deps{
		Repository: repo,
		Discovery:  topics.NewDiscoveryService(repo),
		Mapper:     mapper,
		Cache:      cm,
		Events:     events,
		Realtime:   realtime,
		Historical: store.NewMemoryHistoricalStore(),
	}, queue.Options{Lanes: 2, MaxConcurrentPerLane: 2, LaneCapacity: 16})

	require.NoError(t, svc.Start(context.Background(), nil))
	t.Cleanup(svc.Stop)
	return &pipeline{service: svc, repo: repo, registry: registry, realtime: realtime, events: events}
}

func (p *pipeline) addNamespace(t *testing.T, pathStr, name string) {
	t.Helper()
	path, err := p.registry.CreatePathFromString(pathStr)
	require.NoError(t, err)
	require.NoError(t, p.registry.CreateNamespace(&hierarchy.NamespaceNode{
		Name:             name,
		HierarchicalPath: path,
		IsActive:         true,
	}))
}

func TestRegisteredTopicFlowsToStoreAndBus(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	path, err := p.registry.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	_, err = p.repo.Create(ctx, api.TopicConfiguration{
		Topic: "plant/temp", UNSName: "temp", Path: path,
		NSPath: "Acme/Plant1", SourceType: api.SourceMQTT, IsVerified: true,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var updates []api.TopicDataUpdatedEvent
	bus.Subscribe(p.events, "test", func(ctx context.Context, ev api.TopicDataUpdatedEvent) {
		mu.Lock()
		updates = append(updates, ev)
		mu.Unlock()
	})

	require.NoError(t, p.service.Ingest(ctx, api.DataPoint{
		Topic: "plant/temp", Value: 21.5, SourceSystem: "mqtt",
	}, false))

	require.Eventually(t, func() bool {
		_, err := p.realtime.GetLatest(ctx, "plant/temp")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	dp, err := p.realtime.GetLatest(ctx, "plant/temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, dp.Value)
	assert.Equal(t, "Acme/Plant1", dp.Path.FullPath())
	assert.Equal(t, "temp", dp.UNSName)
	assert.Equal(t, api.QualityGood, dp.Quality)
	assert.False(t, dp.Timestamp.IsZero())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	assert.Equal(t, "plant/temp", updates[0].Topic)
}

func TestUnknownTopicIsAutoMapped(t *testing.T) {
	p := newPipeline(t)
	p.addNamespace(t, "Acme/Plant1", "Sensors")
	ctx := context.Background()

	require.NoError(t, p.service.Ingest(ctx, api.DataPoint{
		Topic: "acme/plant1/sensors/temp", Value: 1, SourceSystem: "mqtt",
	}, false))

	require.Eventually(t, func() bool {
		_, ok := p.repo.GetByTopicAndSource("acme/plant1/sensors/temp", api.SourceMQTT)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tc, _ := p.repo.GetByTopicAndSource("acme/plant1/sensors/temp", api.SourceMQTT)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
	assert.Equal(t, "temp", tc.UNSName)

	dp, err := p.realtime.GetLatest(ctx, "acme/plant1/sensors/temp")
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1", dp.Path.FullPath())
}

func TestUnmappableTopicFallsBackToDiscovery(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.service.Ingest(ctx, api.DataPoint{
		Topic: "orphan", Value: 1, SourceSystem: "nats",
	}, false))

	require.Eventually(t, func() bool {
		_, ok := p.repo.GetByTopicAndSource("orphan", api.SourceNATS)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tc, _ := p.repo.GetByTopicAndSource("orphan", api.SourceNATS)
	assert.False(t, tc.IsVerified)
	assert.Empty(t, tc.NSPath)
}

func TestPauseHoldsProcessing(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.service.Pause()
	require.NoError(t, p.service.Ingest(ctx, api.DataPoint{
		Topic: "orphan2", Value: 1, SourceSystem: "nats",
	}, false))

	time.Sleep(50 * time.Millisecond)
	_, err := p.realtime.GetLatest(ctx, "orphan2")
	assert.True(t, api.IsNotFound(err))

	p.service.Resume()
	require.Eventually(t, func() bool {
		_, err := p.realtime.GetLatest(ctx, "orphan2")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// The service satisfies the registry's ingestion pause hook.
var _ hierarchy.IngestionPauser = (*Service)(nil)
