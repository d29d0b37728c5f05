package app

import (
	"fmt"
	"time"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/bus"
	"unshub/internal/cache"
	"unshub/internal/connection"
	"unshub/internal/connection/mqtt"
	"unshub/internal/connection/natsconn"
	"unshub/internal/connection/socketio"
	"unshub/internal/hierarchy"
	"unshub/internal/ingest"
	"unshub/internal/publish"
	"unshub/internal/query"
	"unshub/internal/store"
	"unshub/internal/topics"
	"unshub/pkg/logging"
)

// Services bundles every long-lived component of the hub. InitializeServices
// wires them; Run starts and stops them in dependency order.
type Services struct {
	Events     *bus.Bus
	Hierarchy  *hierarchy.Registry
	Topics     *topics.Repository
	Discovery  *topics.DiscoveryService
	Cache      *cache.Manager
	Realtime   api.RealtimeStore
	Historical api.HistoricalStore
	Registry   *connection.Registry
	Manager    *connection.Manager
	Mapper     *automap.Mapper
	Ingest     *ingest.Service
	Publisher  *publish.Publisher
	Query      *query.Service
}

// InitializeServices builds the full component graph from the loaded
// configuration. Nothing is started here; Run owns the lifecycle.
func InitializeServices(cfg *Config) (*Services, error) {
	hubCfg := cfg.HubConfig

	events := bus.New()

	registry := hierarchy.NewRegistry()
	repo := topics.NewRepository(events)
	registry.SetTopicSource(repo)
	discovery := topics.NewDiscoveryService(repo)

	cacheMgr := cache.NewManager(repo, cache.DefaultOptions())
	cacheMgr.AttachBus(events)

	realtime := store.NewRetryingRealtimeStore(store.NewMemoryRealtimeStore())
	var historical api.HistoricalStore
	if hubCfg.History.Enabled {
		historical = store.NewMemoryHistoricalStore()
	} else {
		historical = store.NewNoopHistoricalStore()
	}

	connRegistry := connection.NewRegistry()
	for _, desc := range []connection.Descriptor{
		mqtt.Descriptor{},
		natsconn.Descriptor{},
		socketio.Descriptor{},
	} {
		if err := connRegistry.Register(desc); err != nil {
			return nil, fmt.Errorf("failed to register connection type %s: %w", desc.TypeID(), err)
		}
	}
	connMgr := connection.NewManager(connRegistry, events, connection.ManagerOptions{
		IdleTeardown: time.Duration(hubCfg.Connections.IdleTeardownSeconds) * time.Second,
	})

	mapper, err := automap.New(hubCfg.AutoMapping, registry, repo, events)
	if err != nil {
		return nil, fmt.Errorf("failed to build auto-mapper: %w", err)
	}

	ingestSvc := ingest.New(ingest.Deps{
		Manager:    connMgr,
		Repository: repo,
		Discovery:  discovery,
		Mapper:     mapper,
		Cache:      cacheMgr,
		Events:     events,
		Realtime:   realtime,
		Historical: historical,
	}, hubCfg.Queue.ToOptions())
	registry.SetIngestionPauser(ingestSvc)

	publisher := publish.NewPublisher(connMgr, events, registry)

	querySvc := query.New(query.Deps{
		Repository: repo,
		Registry:   registry,
		Cache:      cacheMgr,
		Manager:    connMgr,
		Realtime:   realtime,
		Historical: historical,
		Queue:      ingestSvc,
	})

	logging.Info("Bootstrap", "Initialized services (%d connection types, history enabled: %t)",
		len(connRegistry.Types()), hubCfg.History.Enabled)

	return &Services{
		Events:     events,
		Hierarchy:  registry,
		Topics:     repo,
		Discovery:  discovery,
		Cache:      cacheMgr,
		Realtime:   realtime,
		Historical: historical,
		Registry:   connRegistry,
		Manager:    connMgr,
		Mapper:     mapper,
		Ingest:     ingestSvc,
		Publisher:  publisher,
		Query:      querySvc,
	}, nil
}
