package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/config"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	hubCfg := config.GetDefaultConfig()
	services, err := InitializeServices(&Config{HubConfig: &hubCfg})
	require.NoError(t, err)
	return services
}

func TestInitializeServicesWiresGraph(t *testing.T) {
	services := newTestServices(t)

	assert.NotNil(t, services.Events)
	assert.NotNil(t, services.Query)
	assert.Len(t, services.Registry.Types(), 3)
	for _, typeID := range []string{"mqtt", "nats", "socketio"} {
		_, ok := services.Registry.Get(typeID)
		assert.True(t, ok, "connection type %s not registered", typeID)
	}
	require.NotNil(t, services.Hierarchy.ActiveConfiguration())
}

func TestInitializeServicesRejectsBadMappingRule(t *testing.T) {
	hubCfg := config.GetDefaultConfig()
	hubCfg.AutoMapping.Rules = append(hubCfg.AutoMapping.Rules, automap.Rule{
		Name: "broken", Pattern: "([", Template: "X",
	})

	_, err := InitializeServices(&Config{HubConfig: &hubCfg})
	assert.Error(t, err)
}

func TestPipelineEndToEnd(t *testing.T) {
	services := newTestServices(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, services.Ingest.Start(ctx, nil))
	defer services.Ingest.Stop()

	_, err := services.Topics.Create(ctx, api.TopicConfiguration{
		Topic: "plant/line1/temp", UNSName: "temp",
		NSPath: "Acme/Plant1", SourceType: api.SourceMQTT, IsVerified: true,
	})
	require.NoError(t, err)

	require.NoError(t, services.Ingest.Ingest(ctx, api.DataPoint{
		Topic: "plant/line1/temp", Value: 21.5,
	}, false))

	require.Eventually(t, func() bool {
		dp, err := services.Query.LatestValue(ctx, "plant/line1/temp")
		return err == nil && dp != nil && dp.Value == 21.5
	}, 2*time.Second, 10*time.Millisecond)
}
