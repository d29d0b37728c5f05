// Package publish is the outbound half of the hub: it consumes
// TopicDataUpdatedEvents and forwards them through outputs configured on
// acquired connections.
//
// Two gates sit in front of every emission. Change detection drops a point
// whose value and quality match the last emission for that (output, topic)
// pair. The rate limit enforces a minimum interval between emissions;
// points arriving inside the window are parked and the newest one is
// flushed when the window closes, so downstream always converges on the
// latest value. Model outputs periodically publish the composed namespace
// structure instead of data points.
package publish
