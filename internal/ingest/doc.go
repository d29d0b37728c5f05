// Package ingest runs the intake pipeline between the connection runtime
// and the stores. Every decoded data point goes through the multi-lane
// queue; the lane worker normalises the timestamp, binds the point to its
// topic configuration (auto-mapping unknown topics, falling back to
// discovery registration), persists it, and publishes TopicDataUpdatedEvent.
//
// The service also implements the ingestion pause hook used during
// hierarchy configuration swaps: while paused, arriving points accumulate
// in the bounded queue instead of being processed against a changing tree.
package ingest
