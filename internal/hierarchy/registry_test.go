package hierarchy

import (
	"testing"

	"unshub/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeLevelConfig() *HierarchyConfiguration {
	return &HierarchyConfiguration{
		ID:   "test-3",
		Name: "Three Levels",
		Nodes: []HierarchyNode{
			{ID: "e", Name: "Enterprise", Order: 0, Required: true, AllowTopics: false},
			{ID: "s", Name: "Site", Order: 1, AllowTopics: true},
			{ID: "a", Name: "Area", Order: 2, AllowTopics: true},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.AddConfiguration(threeLevelConfig()))
	require.NoError(t, r.Activate("test-3"))
	return r
}

func TestCreatePathFromString(t *testing.T) {
	r := newTestRegistry(t)

	path, err := r.CreatePathFromString("Acme/Plant1/Line3")
	require.NoError(t, err)
	assert.Equal(t, "Acme", path.Value("Enterprise"))
	assert.Equal(t, "Plant1", path.Value("Site"))
	assert.Equal(t, "Line3", path.Value("Area"))
	assert.Equal(t, "Acme/Plant1/Line3", path.FullPath())
}

func TestCreatePathSkippedLevelIsOmittedFromFullPath(t *testing.T) {
	r := newTestRegistry(t)

	path, err := r.CreatePathFromString("Acme")
	require.NoError(t, err)
	path.Segments[2].Value = "Line3" // Area populated, Site left empty

	assert.Equal(t, "Acme/Line3", path.FullPath())
}

func TestCreatePathRejectsExtraSegments(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.CreatePathFromString("Acme/Plant1/Line3/Extra")
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}

func TestPathRoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	original, err := r.CreatePathFromString("Acme/Plant1/Line3")
	require.NoError(t, err)
	require.NoError(t, r.ValidatePath(original))

	reparsed, err := r.CreatePathFromString(original.FullPath())
	require.NoError(t, err)
	assert.True(t, reparsed.Equal(original))
}

func TestValidatePathRequiresEnterprise(t *testing.T) {
	r := newTestRegistry(t)

	path, err := r.CreatePathFromString("")
	require.NoError(t, err)
	err = r.ValidatePath(path)
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}

func TestValidateTopicMappingRejectsDisallowedLevel(t *testing.T) {
	r := newTestRegistry(t)

	// Deepest populated level is Enterprise, which has allowTopics=false.
	path, err := r.CreatePathFromString("Acme")
	require.NoError(t, err)
	err = r.ValidateTopicMapping(path)
	require.Error(t, err)
	assert.True(t, api.IsTopicNotAllowed(err))

	// One level deeper is fine.
	path, err = r.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	assert.NoError(t, r.ValidateTopicMapping(path))
}

func TestDuplicateOrderIsConfigurationError(t *testing.T) {
	cfg := &HierarchyConfiguration{
		ID:   "dup",
		Name: "Duplicate Orders",
		Nodes: []HierarchyNode{
			{ID: "a", Name: "A", Order: 0},
			{ID: "b", Name: "B", Order: 0},
		},
	}
	r := NewRegistry()
	err := r.AddConfiguration(cfg)
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}

type fakeTopicSource struct {
	topics []api.TopicConfiguration
	byNS   map[string]int
}

func (f *fakeTopicSource) All() []api.TopicConfiguration { return f.topics }
func (f *fakeTopicSource) CountByNamespace(ns string) int {
	return f.byNS[ns]
}

func TestActivateRejectsWhenTopicsWouldBeOrphaned(t *testing.T) {
	r := newTestRegistry(t)

	deepPath, err := r.CreatePathFromString("Acme/Plant1/Line3")
	require.NoError(t, err)
	r.SetTopicSource(&fakeTopicSource{topics: []api.TopicConfiguration{
		{Topic: "sensor/1", Path: deepPath},
	}})

	// A two-level template cannot hold the three-segment path.
	require.NoError(t, r.AddConfiguration(&HierarchyConfiguration{
		ID:   "short",
		Name: "Short",
		Nodes: []HierarchyNode{
			{ID: "e", Name: "Enterprise", Order: 0, Required: true, AllowTopics: false},
			{ID: "s", Name: "Site", Order: 1, AllowTopics: true},
		},
	}))

	err = r.Activate("short")
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
	assert.Contains(t, err.Error(), "sensor/1")

	// The active configuration is unchanged after the rejected swap.
	assert.Equal(t, "test-3", r.ActiveConfiguration().ID)
}

type fakePauser struct {
	paused  int
	resumed int
}

func (p *fakePauser) Pause()  { p.paused++ }
func (p *fakePauser) Resume() { p.resumed++ }

func TestActivatePausesIngestionAroundCommit(t *testing.T) {
	r := newTestRegistry(t)
	pauser := &fakePauser{}
	r.SetIngestionPauser(pauser)

	require.NoError(t, r.AddConfiguration(&HierarchyConfiguration{
		ID:   "alt",
		Name: "Alternative",
		Nodes: []HierarchyNode{
			{ID: "e", Name: "Enterprise", Order: 0, Required: true, AllowTopics: false},
			{ID: "s", Name: "Site", Order: 1, AllowTopics: true},
			{ID: "a", Name: "Area", Order: 2, AllowTopics: true},
		},
	}))
	require.NoError(t, r.Activate("alt"))

	assert.Equal(t, 1, pauser.paused)
	assert.Equal(t, 1, pauser.resumed)
	assert.Equal(t, "alt", r.ActiveConfiguration().ID)
}

func TestCreateNamespaceAndResolve(t *testing.T) {
	r := newTestRegistry(t)

	path, err := r.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	ns := &NamespaceNode{Name: "Production/Sensors", HierarchicalPath: path, AutoVerifyTopics: true}
	require.NoError(t, r.CreateNamespace(ns))

	resolvedPath, resolvedNS, err := r.ResolveNSPath("Acme/Plant1/Production/Sensors")
	require.NoError(t, err)
	require.NotNil(t, resolvedNS)
	assert.Equal(t, ns.ID, resolvedNS.ID)
	assert.Equal(t, "Acme/Plant1", resolvedPath.FullPath())
}

func TestDeleteNamespaceRefusedWhileReferenced(t *testing.T) {
	r := newTestRegistry(t)

	path, err := r.CreatePathFromString("Acme")
	require.NoError(t, err)
	ns := &NamespaceNode{Name: "OEE", HierarchicalPath: path}
	require.NoError(t, r.CreateNamespace(ns))

	r.SetTopicSource(&fakeTopicSource{byNS: map[string]int{"Acme/OEE": 2}})
	err = r.DeleteNamespace(ns.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNamespaceInUse)

	r.SetTopicSource(&fakeTopicSource{})
	assert.NoError(t, r.DeleteNamespace(ns.ID))
}

func TestEnsureNamespaceMaterialisesMissingNode(t *testing.T) {
	r := newTestRegistry(t)

	ns, err := r.EnsureNamespace("Enterprise1/OEE", true)
	require.NoError(t, err)
	require.NotNil(t, ns)
	assert.Equal(t, "OEE", ns.Name)
	assert.Equal(t, "Enterprise1", ns.HierarchicalPath.FullPath())
	assert.True(t, ns.AutoVerifyTopics)

	// A second call finds the existing node.
	again, err := r.EnsureNamespace("Enterprise1/OEE", false)
	require.NoError(t, err)
	assert.Equal(t, ns.ID, again.ID)
}

func TestNamespaceStructureBuildsForest(t *testing.T) {
	r := newTestRegistry(t)

	p1, err := r.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	require.NoError(t, r.CreateNamespace(&NamespaceNode{Name: "Sensors", HierarchicalPath: p1}))
	p2, err := r.CreatePathFromString("Acme/Plant2")
	require.NoError(t, err)
	require.NoError(t, r.CreateNamespace(&NamespaceNode{Name: "OEE", HierarchicalPath: p2}))

	forest := r.NamespaceStructure()
	require.Len(t, forest, 1)
	acme := forest[0]
	assert.Equal(t, "Acme", acme.Name)
	assert.Equal(t, NSNodeHierarchy, acme.NodeType)
	require.Len(t, acme.Children, 2)

	plant1 := acme.child("Plant1")
	require.NotNil(t, plant1)
	sensors := plant1.child("Sensors")
	require.NotNil(t, sensors)
	assert.Equal(t, NSNodeNamespace, sensors.NodeType)
	assert.Equal(t, "Acme/Plant1/Sensors", sensors.FullPath)
}

func TestWalkStructureRespectsMaxDepth(t *testing.T) {
	r := newTestRegistry(t)
	p1, err := r.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	require.NoError(t, r.CreateNamespace(&NamespaceNode{Name: "Production/Sensors", HierarchicalPath: p1}))

	var visited []string
	WalkStructure(r.NamespaceStructure(), 2, func(n *NSTreeNode, depth int) {
		visited = append(visited, n.FullPath)
	})

	assert.Equal(t, []string{"Acme", "Acme/Plant1"}, visited)
}
