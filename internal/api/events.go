package api

import "time"

// Domain events distributed over the in-process event bus. Delivery is
// at-most-once per subscription and not persisted; see internal/bus.

// TopicAddedEvent is published when a new topic configuration is registered,
// whether by the auto-mapper, the discovery fallback, or an operator.
type TopicAddedEvent struct {
	Config    TopicConfiguration
	Timestamp time.Time
}

// TopicConfigurationUpdatedEvent is published when an existing topic
// configuration is modified (path change, verification, metadata).
type TopicConfigurationUpdatedEvent struct {
	Config    TopicConfiguration
	Timestamp time.Time
}

// TopicRemovedEvent is published when a topic configuration is deleted.
type TopicRemovedEvent struct {
	Topic      string
	SourceType SourceType
	Timestamp  time.Time
}

// TopicDataUpdatedEvent is published by the queue processor after a data
// point has been written to the realtime store.
type TopicDataUpdatedEvent struct {
	Topic     string
	Point     DataPoint
	Timestamp time.Time
}

// AutoMappingFailedEvent is published when the auto-mapper rejects a topic:
// either no candidate reached the confidence threshold, or the resolved
// placement is not allowed to carry topics.
type AutoMappingFailedEvent struct {
	Topic       string
	SourceType  SourceType
	Reason      string
	Suggestions []string
	Timestamp   time.Time
}

// ConnectionStatusChangedEvent mirrors a connection's StatusChanged callback
// onto the bus so that observers outside the connection manager can react.
type ConnectionStatusChangedEvent struct {
	ConnectionID string
	OldState     ConnectionState
	NewState     ConnectionState
	Message      string
	Timestamp    time.Time
}
