package topics

import (
	"context"
	"testing"

	"unshub/internal/api"
	"unshub/internal/bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEmitsTopicAddedEvent(t *testing.T) {
	b := bus.New()
	repo := NewRepository(b)

	var events []api.TopicAddedEvent
	bus.Subscribe(b, "test", func(ctx context.Context, e api.TopicAddedEvent) {
		events = append(events, e)
	})

	created, err := repo.Create(context.Background(), api.TopicConfiguration{
		Topic:      "factory/line1/temp",
		SourceType: api.SourceMQTT,
		NSPath:     "Acme/Plant1/Sensors",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	require.Len(t, events, 1)
	assert.Equal(t, "factory/line1/temp", events[0].Config.Topic)
}

func TestUniquenessPerTopicAndSource(t *testing.T) {
	repo := NewRepository(bus.New())
	ctx := context.Background()

	_, err := repo.Create(ctx, api.TopicConfiguration{Topic: "a/b", SourceType: api.SourceMQTT})
	require.NoError(t, err)

	// Same topic, same source: rejected (case-insensitive).
	_, err = repo.Create(ctx, api.TopicConfiguration{Topic: "A/B", SourceType: api.SourceMQTT})
	assert.ErrorIs(t, err, api.ErrAlreadyExists)

	// Same topic, different source: allowed.
	_, err = repo.Create(ctx, api.TopicConfiguration{Topic: "a/b", SourceType: api.SourceSocketIO})
	assert.NoError(t, err)
}

func TestGetByTopicIsCaseInsensitiveAndPrefersVerified(t *testing.T) {
	repo := NewRepository(bus.New())
	ctx := context.Background()

	_, err := repo.Create(ctx, api.TopicConfiguration{Topic: "plant/oee", SourceType: api.SourceSocketIO, IsVerified: false})
	require.NoError(t, err)
	verified, err := repo.Create(ctx, api.TopicConfiguration{Topic: "plant/oee", SourceType: api.SourceMQTT, IsVerified: true})
	require.NoError(t, err)

	got, ok := repo.GetByTopic("PLANT/OEE")
	require.True(t, ok)
	assert.Equal(t, verified.ID, got.ID)
}

func TestDeleteEmitsTopicRemovedEvent(t *testing.T) {
	b := bus.New()
	repo := NewRepository(b)
	ctx := context.Background()

	var removed []api.TopicRemovedEvent
	bus.Subscribe(b, "test", func(ctx context.Context, e api.TopicRemovedEvent) {
		removed = append(removed, e)
	})

	_, err := repo.Create(ctx, api.TopicConfiguration{Topic: "x/y", SourceType: api.SourceMQTT})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "X/Y", api.SourceMQTT))

	require.Len(t, removed, 1)
	assert.Equal(t, "x/y", removed[0].Topic)
	assert.Equal(t, 0, repo.Count())
}

func TestUpdateEmitsConfigurationUpdatedEvent(t *testing.T) {
	b := bus.New()
	repo := NewRepository(b)
	ctx := context.Background()

	var updated []api.TopicConfigurationUpdatedEvent
	bus.Subscribe(b, "test", func(ctx context.Context, e api.TopicConfigurationUpdatedEvent) {
		updated = append(updated, e)
	})

	created, err := repo.Create(ctx, api.TopicConfiguration{Topic: "m/n", SourceType: api.SourceMQTT})
	require.NoError(t, err)

	created.IsVerified = true
	_, err = repo.Update(ctx, created)
	require.NoError(t, err)

	require.Len(t, updated, 1)
	assert.True(t, updated[0].Config.IsVerified)
}

func TestBulkQueries(t *testing.T) {
	repo := NewRepository(bus.New())
	ctx := context.Background()

	seed := []api.TopicConfiguration{
		{Topic: "t1", SourceType: api.SourceMQTT, NSPath: "Acme/Plant1/Sensors", IsVerified: true},
		{Topic: "t2", SourceType: api.SourceMQTT, NSPath: "Acme/Plant1/Sensors/Temp"},
		{Topic: "t3", SourceType: api.SourceSocketIO, NSPath: "Acme/Plant2"},
	}
	for _, tc := range seed {
		_, err := repo.Create(ctx, tc)
		require.NoError(t, err)
	}

	assert.Len(t, repo.ByNamespace("Acme/Plant1/Sensors"), 2)
	assert.Len(t, repo.BySource(api.SourceMQTT), 2)
	assert.Len(t, repo.UnverifiedOnly(), 2)
	assert.Equal(t, 3, repo.Count())
	assert.Equal(t, 2, repo.CountByNamespace("Acme/Plant1/Sensors"))
}

func TestSearchSubstringAndGlob(t *testing.T) {
	repo := NewRepository(bus.New())
	ctx := context.Background()
	for _, topic := range []string{"plant/line1/temp", "plant/line2/temp", "plant/line1/speed"} {
		_, err := repo.Create(ctx, api.TopicConfiguration{Topic: topic, SourceType: api.SourceMQTT})
		require.NoError(t, err)
	}

	assert.Len(t, repo.Search("temp"), 2)
	assert.Len(t, repo.Search("plant/*/speed"), 1)
	assert.Empty(t, repo.Search("nothing"))
}

func TestDiscoveryFallbackCreatesUnverified(t *testing.T) {
	b := bus.New()
	repo := NewRepository(b)
	disc := NewDiscoveryService(repo)
	ctx := context.Background()

	tc, err := disc.Discover(ctx, "raw/unknown/value", api.SourceNATS)
	require.NoError(t, err)
	assert.False(t, tc.IsVerified)
	assert.Equal(t, "", tc.NSPath)
	assert.True(t, tc.Path.IsEmpty())
	assert.Equal(t, "value", tc.UNSName)

	// Idempotent: a second discovery returns the same configuration.
	again, err := disc.Discover(ctx, "raw/unknown/value", api.SourceNATS)
	require.NoError(t, err)
	assert.Equal(t, tc.ID, again.ID)
	assert.Equal(t, 1, repo.Count())
}
