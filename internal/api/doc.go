// Package api holds the shared types of the unshub core: lifecycle states,
// domain value types (DataPoint, HierarchicalPath, TopicConfiguration),
// the domain events distributed over the in-process bus, the store surface
// consumed by the queue processor, and the standardized error types.
//
// Components depend on this package instead of on each other, which keeps
// the dependency graph acyclic: the cache, the connection runtime, the
// auto-mapper and the publishers all speak in api types.
//
// # Error Types
//
// Three typed errors cover the synchronously surfaced error kinds:
//
//   - NotFoundError: a registry or repository lookup missed
//   - ValidationError: a configuration or path is structurally invalid
//   - TopicNotAllowedError: a placement's deepest level rejects topics
//
// Each has an IsX helper built on errors.As so wrapped errors are matched.
package api
