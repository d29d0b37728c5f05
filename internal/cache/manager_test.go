package cache

import (
	"context"
	"testing"
	"time"

	"unshub/internal/api"
	"unshub/internal/bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	configs map[string]api.TopicConfiguration
	lookups int
}

func (f *fakeSource) Lookup(topic string) (api.TopicConfiguration, bool) {
	f.lookups++
	cfg, ok := f.configs[topic]
	return cfg, ok
}

func newTestManager(source *fakeSource) *Manager {
	return NewManager(source, DefaultOptions())
}

func TestGetReadsThroughAndPopulatesAllTiers(t *testing.T) {
	source := &fakeSource{configs: map[string]api.TopicConfiguration{
		"T": {Topic: "T", NSPath: "Acme/Sensors"},
	}}
	m := newTestManager(source)

	entry, err := m.Get(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, "T", entry.Config.Topic)
	assert.Equal(t, 1, source.lookups)

	stats := m.GetStatistics()
	assert.Equal(t, 1, stats.L1Size)
	assert.Equal(t, 1, stats.L2Size)
	assert.Equal(t, 1, stats.L3Size)

	// The second get is an L1 hit; the source is not consulted again.
	_, err = m.Get(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, 1, source.lookups)
	assert.Equal(t, int64(1), m.GetStatistics().L1Hits)
}

func TestGetMissIsNotFound(t *testing.T) {
	m := newTestManager(&fakeSource{configs: map[string]api.TopicConfiguration{}})

	_, err := m.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, int64(1), m.GetStatistics().Misses)
}

func TestMaintenanceDemotesIdleL1ToL2AndL2HitRepopulatesL1(t *testing.T) {
	source := &fakeSource{configs: map[string]api.TopicConfiguration{
		"T": {Topic: "T"},
	}}
	m := newTestManager(source)

	_, err := m.Get(context.Background(), "T")
	require.NoError(t, err)
	// Remove the warm copy so the demotion path is what feeds L2.
	m.l2.Delete("T")

	// Simulate 16 minutes of idleness: expired for L1 (15 min) but inside
	// the 30 min demote window.
	v, ok := m.l1.Load("T")
	require.True(t, ok)
	v.(*l1Item).lastAccessed.Store(time.Now().Add(-16 * time.Minute).UnixMilli())

	m.runMaintenance()

	_, inL1 := m.l1.Load("T")
	assert.False(t, inL1, "item must be demoted out of L1")
	_, inL2 := m.l2.Load("T")
	assert.True(t, inL2, "item must land in L2")

	// Next get is an L2 hit and repopulates L1 without a source read.
	before := source.lookups
	entry, err := m.Get(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, "T", entry.Config.Topic)
	assert.Equal(t, before, source.lookups)
	_, inL1 = m.l1.Load("T")
	assert.True(t, inL1)
	assert.Equal(t, int64(1), m.GetStatistics().L2Hits)
}

func TestMaintenanceDropsL1ItemsPastDemoteWindow(t *testing.T) {
	m := newTestManager(&fakeSource{configs: map[string]api.TopicConfiguration{"T": {Topic: "T"}}})
	_, err := m.Get(context.Background(), "T")
	require.NoError(t, err)
	m.l2.Delete("T")

	v, _ := m.l1.Load("T")
	v.(*l1Item).lastAccessed.Store(time.Now().Add(-45 * time.Minute).UnixMilli())

	m.runMaintenance()

	_, inL1 := m.l1.Load("T")
	_, inL2 := m.l2.Load("T")
	assert.False(t, inL1)
	assert.False(t, inL2, "items older than the demote window are dropped, not demoted")
}

func TestMaintenanceDemotesIdleL2ToL3Marker(t *testing.T) {
	m := newTestManager(&fakeSource{configs: map[string]api.TopicConfiguration{"T": {Topic: "T"}}})
	_, err := m.Get(context.Background(), "T")
	require.NoError(t, err)
	m.l1.Delete("T")
	m.l3.Delete("T")

	v, _ := m.l2.Load("T")
	v.(*l2Item).lastAccessed.Store(time.Now().Add(-3 * time.Hour).UnixMilli())

	m.runMaintenance()

	_, inL2 := m.l2.Load("T")
	assert.False(t, inL2)
	_, inL3 := m.l3.Load("T")
	assert.True(t, inL3, "expired L2 items inside the 4h window become L3 markers")
}

func TestEnforceCapEvictsLeastRecentlyAccessed(t *testing.T) {
	opts := DefaultOptions()
	opts.L1Capacity = 2
	source := &fakeSource{configs: map[string]api.TopicConfiguration{
		"a": {Topic: "a"}, "b": {Topic: "b"}, "c": {Topic: "c"},
	}}
	m := NewManager(source, opts)

	for i, key := range []string{"a", "b", "c"} {
		_, err := m.Get(context.Background(), key)
		require.NoError(t, err)
		// Stagger access times so eviction order is deterministic.
		v, _ := m.l1.Load(key)
		v.(*l1Item).lastAccessed.Store(time.Now().Add(time.Duration(i) * time.Second).UnixMilli())
	}

	m.runMaintenance()

	_, aIn := m.l1.Load("a")
	_, bIn := m.l1.Load("b")
	_, cIn := m.l1.Load("c")
	assert.False(t, aIn, "oldest item is evicted")
	assert.True(t, bIn)
	assert.True(t, cIn)
}

func TestWarmingPromotesTopAccessedL2Entries(t *testing.T) {
	opts := DefaultOptions()
	opts.WarmTopK = 1
	m := NewManager(&fakeSource{}, opts)

	for _, key := range []string{"hot", "cold"} {
		blob, err := encodeEntry(Entry{Config: api.TopicConfiguration{Topic: key}})
		require.NoError(t, err)
		m.l2.Store(key, newL2Item(blob, 1))
	}
	v, _ := m.l2.Load("hot")
	v.(*l2Item).accessCount.Store(50)

	m.runWarming()

	_, hotIn := m.l1.Load("hot")
	_, coldIn := m.l1.Load("cold")
	assert.True(t, hotIn)
	assert.False(t, coldIn)
}

func TestBusDrivenInvalidation(t *testing.T) {
	b := bus.New()
	source := &fakeSource{configs: map[string]api.TopicConfiguration{}}
	m := newTestManager(source)
	m.AttachBus(b)
	ctx := context.Background()

	cfg := api.TopicConfiguration{Topic: "T", NSPath: "Acme/X"}
	b.Publish(ctx, api.TopicAddedEvent{Config: cfg})
	entry, err := m.Get(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "Acme/X", entry.Config.NSPath)

	dp := api.DataPoint{Topic: "T", Value: 23.5}
	b.Publish(ctx, api.TopicDataUpdatedEvent{Topic: "T", Point: dp})
	entry, err = m.Get(ctx, "T")
	require.NoError(t, err)
	require.NotNil(t, entry.Latest)
	assert.Equal(t, 23.5, entry.Latest.Value)

	// After a configuration update the pre-event value must be gone; the
	// repository does not know T, so the read now misses.
	b.Publish(ctx, api.TopicConfigurationUpdatedEvent{Config: cfg})
	_, err = m.Get(ctx, "T")
	assert.True(t, api.IsNotFound(err))
}

func TestInvalidateClearsAllTiers(t *testing.T) {
	m := newTestManager(&fakeSource{configs: map[string]api.TopicConfiguration{"T": {Topic: "T"}}})
	_, err := m.Get(context.Background(), "T")
	require.NoError(t, err)

	m.Invalidate("T")

	stats := m.GetStatistics()
	assert.Zero(t, stats.L1Size)
	assert.Zero(t, stats.L2Size)
	assert.Zero(t, stats.L3Size)
}
