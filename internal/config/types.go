package config

import (
	"unshub/internal/automap"
	"unshub/internal/connection"
	"unshub/internal/queue"
)

// Config is the top-level configuration structure for unshub.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Queue       QueueConfig       `yaml:"queue"`
	History     HistoryConfig     `yaml:"history"`
	AutoMapping automap.Config    `yaml:"autoMapping"`
	Connections ConnectionsConfig `yaml:"connections"`
}

// ServerConfig holds the process-level endpoints.
type ServerConfig struct {
	Host        string `yaml:"host,omitempty"`        // Host to bind to (default: localhost)
	MetricsPort int    `yaml:"metricsPort,omitempty"` // Prometheus endpoint port (default: 9090)
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default: info)
	JSON  bool   `yaml:"json,omitempty"`  // JSON output instead of text
}

// QueueConfig sizes the ingestion queue processor.
type QueueConfig struct {
	Lanes                int `yaml:"lanes,omitempty"`
	MaxConcurrentPerLane int `yaml:"maxConcurrentPerLane,omitempty"`
	LaneCapacity         int `yaml:"laneCapacity,omitempty"`
	PriorityMultiplier   int `yaml:"priorityMultiplier,omitempty"`
}

// ToOptions converts the section to processor options; zero values fall
// back to the processor defaults.
func (q QueueConfig) ToOptions() queue.Options {
	return queue.Options{
		Lanes:                q.Lanes,
		MaxConcurrentPerLane: q.MaxConcurrentPerLane,
		LaneCapacity:         q.LaneCapacity,
		PriorityMultiplier:   q.PriorityMultiplier,
	}
}

// HistoryConfig controls historical storage.
type HistoryConfig struct {
	Enabled        bool `yaml:"enabled"`
	RetentionHours int  `yaml:"retentionHours,omitempty"` // Archive cutoff (default: 168)
}

// ConnectionsConfig declares the managed connections.
type ConnectionsConfig struct {
	// IdleTeardownSeconds keeps released connections alive for quick
	// re-acquisition (default: 30).
	IdleTeardownSeconds int `yaml:"idleTeardownSeconds,omitempty"`

	// Ingest connections feed the intake pipeline.
	Ingest []connection.ConnectionConfiguration `yaml:"ingest,omitempty"`

	// Publish connections carry outbound outputs.
	Publish []connection.ConnectionConfiguration `yaml:"publish,omitempty"`
}
