package hierarchy

import "strings"

// NamespaceStructure builds the NSTreeNode forest: for every registered
// namespace node, a chain of hierarchy level instances along its hierarchical
// path with the namespace (possibly several nested segments) attached at the
// end. Chains sharing a prefix are merged. Empty namespaces appear in the
// forest like any other.
func (r *Registry) NamespaceStructure() []*NSTreeNode {
	root := &NSTreeNode{}

	for _, ns := range r.Namespaces() {
		if !ns.IsActive {
			continue
		}
		current := root
		fullPath := ""

		for _, seg := range ns.HierarchicalPath.Segments {
			if seg.Value == "" {
				continue
			}
			fullPath = joinPath(fullPath, seg.Value)
			next := current.child(seg.Value)
			if next == nil {
				next = &NSTreeNode{Name: seg.Value, FullPath: fullPath, NodeType: NSNodeHierarchy}
				current.Children = append(current.Children, next)
			}
			current = next
		}

		for _, part := range strings.Split(ns.Name, "/") {
			if part == "" {
				continue
			}
			fullPath = joinPath(fullPath, part)
			next := current.child(part)
			if next == nil {
				next = &NSTreeNode{Name: part, FullPath: fullPath, NodeType: NSNodeNamespace}
				current.Children = append(current.Children, next)
			}
			current = next
		}
	}

	root.sortChildren()
	return root.Children
}

func joinPath(base, part string) string {
	if base == "" {
		return part
	}
	return base + "/" + part
}

// WalkStructure traverses the forest depth-first up to maxDepth levels,
// calling visit with each node. A maxDepth of 0 means unlimited.
func WalkStructure(forest []*NSTreeNode, maxDepth int, visit func(node *NSTreeNode, depth int)) {
	var walk func(nodes []*NSTreeNode, depth int)
	walk = func(nodes []*NSTreeNode, depth int) {
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		for _, n := range nodes {
			visit(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(forest, 1)
}
