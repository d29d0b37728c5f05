package hierarchy

import (
	"fmt"
	"sort"
	"time"

	"unshub/internal/api"
)

// HierarchyNode is one level of a hierarchy template (Enterprise, Site, ...).
// Nodes are immutable between configuration activations.
type HierarchyNode struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Order           int      `json:"order" yaml:"order"`
	Required        bool     `json:"required" yaml:"required"`
	ParentID        string   `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	AllowedChildIDs []string `json:"allowedChildIds,omitempty" yaml:"allowedChildIds,omitempty"`
	AllowTopics     bool     `json:"allowTopics" yaml:"allowTopics"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// HierarchyConfiguration is an ordered set of HierarchyNodes defining the
// active hierarchy template. At most one configuration is active at a time.
type HierarchyConfiguration struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Nodes           []HierarchyNode `json:"nodes" yaml:"nodes"`
	IsActive        bool            `json:"isActive" yaml:"isActive"`
	IsSystemDefined bool            `json:"isSystemDefined" yaml:"isSystemDefined"`
}

// OrderedNodes returns the nodes sorted by ascending order. Two nodes sharing
// the same order value are a configuration error.
func (c *HierarchyConfiguration) OrderedNodes() ([]HierarchyNode, error) {
	nodes := make([]HierarchyNode, len(c.Nodes))
	copy(nodes, c.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	for i := 1; i < len(nodes); i++ {
		if nodes[i].Order == nodes[i-1].Order {
			return nil, api.NewValidationError("hierarchy configuration",
				fmt.Sprintf("nodes %s and %s share order %d", nodes[i-1].Name, nodes[i].Name, nodes[i].Order))
		}
	}
	return nodes, nil
}

// NodeByName returns the node with the given level name.
func (c *HierarchyConfiguration) NodeByName(name string) (HierarchyNode, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return HierarchyNode{}, false
}

// Validate checks the structural invariants of the configuration: a name,
// at least one node, unique node names and unique order values.
func (c *HierarchyConfiguration) Validate() error {
	var messages []string
	if c.Name == "" {
		messages = append(messages, "configuration name is empty")
	}
	if len(c.Nodes) == 0 {
		messages = append(messages, "configuration has no nodes")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			messages = append(messages, "node with empty name")
			continue
		}
		if seen[n.Name] {
			messages = append(messages, fmt.Sprintf("duplicate node name %s", n.Name))
		}
		seen[n.Name] = true
	}
	if _, err := c.OrderedNodes(); err != nil {
		if verr, ok := err.(*api.ValidationError); ok {
			messages = append(messages, verr.Messages...)
		} else {
			messages = append(messages, err.Error())
		}
	}
	if len(messages) > 0 {
		return api.NewValidationError("hierarchy configuration", messages...)
	}
	return nil
}

// NamespaceNode is a user-created sub-namespace attached under a specific
// hierarchical path, e.g. "Production/Sensors" under Enterprise=Acme/Site=Plant1.
type NamespaceNode struct {
	ID               string               `json:"id" yaml:"id"`
	Name             string               `json:"name" yaml:"name"`
	Type             string               `json:"type,omitempty" yaml:"type,omitempty"`
	HierarchicalPath api.HierarchicalPath `json:"hierarchicalPath" yaml:"hierarchicalPath"`
	TopicPathPattern string               `json:"topicPathPattern,omitempty" yaml:"topicPathPattern,omitempty"`
	AutoVerifyTopics bool                 `json:"autoVerifyTopics" yaml:"autoVerifyTopics"`
	IsActive         bool                 `json:"isActive" yaml:"isActive"`
	CreatedAt        time.Time            `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// FullPath returns the /-joined navigation path of the namespace: the
// hierarchical path followed by the namespace name.
func (n *NamespaceNode) FullPath() string {
	base := n.HierarchicalPath.FullPath()
	if base == "" {
		return n.Name
	}
	return base + "/" + n.Name
}

// NSNodeType distinguishes composed tree nodes.
type NSNodeType string

const (
	NSNodeHierarchy NSNodeType = "HierarchyNode"
	NSNodeNamespace NSNodeType = "Namespace"
)

// NSTreeNode is a composed view node: either a hierarchy level instance or a
// namespace node, plus its children. The tree is derived from the registry on
// demand and used by the auto-mapper for traversal.
type NSTreeNode struct {
	Name     string        `json:"name"`
	FullPath string        `json:"fullPath"`
	NodeType NSNodeType    `json:"nodeType"`
	Children []*NSTreeNode `json:"children,omitempty"`
}

func (n *NSTreeNode) child(name string) *NSTreeNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *NSTreeNode) sortChildren() {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		c.sortChildren()
	}
}
