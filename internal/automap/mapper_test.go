package automap

import (
	"context"
	"sync"
	"testing"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/internal/hierarchy"
	"unshub/internal/topics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *hierarchy.Registry
	repo     *topics.Repository
	events   *bus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := hierarchy.NewRegistry()
	cfg := &hierarchy.HierarchyConfiguration{
		ID:   "test",
		Name: "test",
		Nodes: []hierarchy.HierarchyNode{
			{Name: "Enterprise", Order: 0, Required: true, AllowTopics: false},
			{Name: "Site", Order: 1, AllowTopics: true},
			{Name: "Area", Order: 2, AllowTopics: true},
		},
	}
	require.NoError(t, registry.AddConfiguration(cfg))
	require.NoError(t, registry.Activate("test"))
	events := bus.New()
	repo := topics.NewRepository(events)
	return &fixture{registry: registry, repo: repo, events: events}
}

func (f *fixture) addNamespace(t *testing.T, pathStr, name string, autoVerify bool) {
	t.Helper()
	path, err := f.registry.CreatePathFromString(pathStr)
	require.NoError(t, err)
	require.NoError(t, f.registry.CreateNamespace(&hierarchy.NamespaceNode{
		Name:             name,
		HierarchicalPath: path,
		AutoVerifyTopics: autoVerify,
		IsActive:         true,
	}))
}

func newMapper(t *testing.T, f *fixture, cfg Config) *Mapper {
	t.Helper()
	m, err := New(cfg, f.registry, f.repo, f.events)
	require.NoError(t, err)
	return m
}

func TestRulePhaseWinsOverTree(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.Rules = []Rule{{
		Name:     "oee",
		Pattern:  `^machines/([^/]+)/oee/.*$`,
		Template: "Acme/Plant1/OEE/{0}",
		Active:   true,
	}}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "machines/press7/oee/availability", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/OEE/press7", tc.NSPath)
	assert.Equal(t, "availability", tc.UNSName)
	assert.Equal(t, "rule:oee", tc.Metadata["mappedBy"])
}

func TestTreePhaseMapsUnderExistingStructure(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	m := newMapper(t, f, DefaultConfig())

	tc, err := m.Map(context.Background(), "acme/plant1/sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
	assert.Equal(t, "temp", tc.UNSName)
	assert.Equal(t, "tree", tc.Metadata["mappedBy"])
	assert.Equal(t, "1.00", tc.Metadata["confidence"])
}

func TestTreePhaseCreatesMissingNodes(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "Existing", false)

	m := newMapper(t, f, DefaultConfig())

	tc, err := m.Map(context.Background(), "Enterprise1/OEE/availability", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Enterprise1/OEE", tc.NSPath)

	ns, ok := f.registry.FindNamespaceByPath("Enterprise1/OEE")
	require.True(t, ok)
	assert.Equal(t, "OEE", ns.Name)
	assert.Equal(t, "Enterprise1", ns.HierarchicalPath.FullPath())
}

func TestLowConfidencePublishesFailureWithSuggestions(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.CreateMissingNodes = false
	m := newMapper(t, f, cfg)

	var mu sync.Mutex
	var failures []api.AutoMappingFailedEvent
	bus.Subscribe(f.events, "test", func(ctx context.Context, ev api.AutoMappingFailedEvent) {
		mu.Lock()
		failures = append(failures, ev)
		mu.Unlock()
	})

	_, err := m.Map(context.Background(), "acme/otherplant/press/temp", api.SourceMQTT)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, "acme/otherplant/press/temp", failures[0].Topic)
	assert.Contains(t, failures[0].Suggestions, "Acme")
}

func TestDisabledMapperFailsEveryTopic(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := newMapper(t, f, cfg)

	_, err := m.Map(context.Background(), "a/b/c", api.SourceMQTT)
	require.Error(t, err)
	assert.Zero(t, f.repo.Count())
}

func TestStripPrefixes(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.StripPrefixes = []string{"spBv1.0/stuff"}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "spBv1.0/stuff/acme/plant1/sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
}

func TestRuleCaptureSubstitutionIsZeroBased(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "OEE", false)

	cfg := DefaultConfig()
	cfg.MinimumConfidence = 0.8
	cfg.StripPrefixes = []string{"socketio/update/"}
	cfg.Rules = []Rule{{
		Name:       "two-level",
		Pattern:    `([^/]+)/([^/]+)/?.*`,
		Template:   "{0}/{1}",
		Confidence: 0.9,
		Active:     true,
	}}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "socketio/update/Enterprise1/OEE/value", api.SourceSocketIO)
	require.NoError(t, err)
	assert.Equal(t, "Enterprise1/OEE", tc.NSPath)
	assert.Equal(t, "value", tc.UNSName)
}

func TestInactiveRuleIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.Rules = []Rule{{
		Name:        "parked",
		Pattern:     `^acme/.*$`,
		Template:    "Somewhere/Else",
		Active:      false,
		Description: "kept for the Q3 migration",
	}}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "acme/plant1/sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
	assert.Equal(t, "tree", tc.Metadata["mappedBy"])
}

func TestStripPicksLongestMatchingPrefix(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.StripPrefixes = []string{"spBv1.0", "spBv1.0/stuff"}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "spBv1.0/stuff/acme/plant1/sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
}

func TestRuleMatchingIsCaseInsensitiveByDefault(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "OEE", false)

	cfg := DefaultConfig()
	cfg.Rules = []Rule{{
		Name:     "upper",
		Pattern:  `^MACHINES/([^/]+)/.*$`,
		Template: "Enterprise1/OEE/{0}",
		Active:   true,
	}}
	m := newMapper(t, f, cfg)

	tc, err := m.Map(context.Background(), "machines/Press7/speed", api.SourceMQTT)
	require.NoError(t, err)
	// Matching folds case; captured text keeps the topic's casing.
	assert.Equal(t, "Enterprise1/OEE/Press7", tc.NSPath)
}

func TestAutoVerifyNamespaceVerifiesTopic(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", true)

	m := newMapper(t, f, DefaultConfig())

	tc, err := m.Map(context.Background(), "acme/plant1/sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.True(t, tc.IsVerified)
}

func TestCaseSensitiveMatching(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	cfg := DefaultConfig()
	cfg.CaseSensitive = true
	cfg.CreateMissingNodes = false
	m := newMapper(t, f, cfg)

	_, err := m.Map(context.Background(), "acme/plant1/sensors/temp", api.SourceMQTT)
	require.Error(t, err)

	tc, err := m.Map(context.Background(), "Acme/Plant1/Sensors/temp", api.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Sensors", tc.NSPath)
}

func TestBadRulePatternIsConstructionError(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Rules = []Rule{{Name: "broken", Pattern: "["}}

	_, err := New(cfg, f.registry, f.repo, f.events)
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}
