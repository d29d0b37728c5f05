// Package hierarchy implements the hierarchy and namespace registry: the
// authoritative structure of allowed paths and named sub-namespaces.
//
// A HierarchyConfiguration is an ordered template of levels (Enterprise,
// Site, Area, ...). Exactly one configuration is active at a time; swapping
// the active configuration re-validates every registered topic and namespace
// first and commits atomically, optionally pausing ingestion around the
// commit.
//
// NamespaceNodes are user-created sub-namespaces attached under a concrete
// hierarchical path. The registry composes both into the NSTreeNode forest
// the auto-mapper walks when placing newly discovered topics.
//
// Invariants enforced here:
//
//   - level order values are unique within a configuration
//   - required levels carry values on every validated path
//   - a level with allowTopics=false is never the deepest populated segment
//     of a topic placement
//   - a namespace is only deletable while no topic references it
package hierarchy
