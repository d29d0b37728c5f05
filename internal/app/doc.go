// Package app bootstraps and runs the hub.
//
// It follows a two-phase pattern: NewApplication loads configuration and
// wires the service graph (bus, hierarchy registry, topic repository, cache,
// stores, connection manager, auto-mapper, ingestion pipeline, publisher,
// query surface), and Run starts everything, serves the metrics endpoint,
// and blocks until shutdown.
package app
