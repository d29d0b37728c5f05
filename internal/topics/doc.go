// Package topics implements the topic configuration repository: the registry
// of known topics, verified or unverified, each bound to a hierarchical path
// and an NS path.
//
// Topic strings match case-insensitively and uniqueness is enforced per
// (topic, sourceType) pair. Every mutation is announced on the event bus as
// TopicAddedEvent, TopicConfigurationUpdatedEvent or TopicRemovedEvent, which
// drives cache invalidation and downstream export.
//
// The package also carries the DiscoveryService fallback: topics the
// auto-mapper could not place are registered unverified with an empty
// placement so operators can triage them.
package topics
