package api

import (
	"strings"
	"time"
)

// ConnectionState represents the lifecycle state of a connection.
type ConnectionState string

const (
	// StateDisabled is the initial state before Initialize has run.
	StateDisabled ConnectionState = "disabled"
	// StateDisconnected means the connection is configured but not started.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting means the transport is being established.
	StateConnecting ConnectionState = "connecting"
	// StateConnected means the transport is up and inputs are live.
	StateConnected ConnectionState = "connected"
	// StateStopping means a stop was requested and teardown is in progress.
	StateStopping ConnectionState = "stopping"
	// StateError means initialization or the transport failed.
	StateError ConnectionState = "error"
)

// IsActive reports whether the state counts as an active lifecycle state,
// i.e. one that Stop() must transition out of.
func (s ConnectionState) IsActive() bool {
	return s == StateConnecting || s == StateConnected
}

// SourceType identifies the kind of external system a topic was ingested from.
type SourceType string

const (
	SourceMQTT     SourceType = "mqtt"
	SourceSocketIO SourceType = "socketio"
	SourceNATS     SourceType = "nats"
	SourceInternal SourceType = "internal"
)

// Quality is the OPC-style quality marker attached to a data point.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityBad       Quality = "bad"
	QualityUncertain Quality = "uncertain"
)

// PathSegment is one (level, value) assignment of a hierarchical path.
type PathSegment struct {
	Level string `json:"level" yaml:"level"`
	Value string `json:"value" yaml:"value"`
}

// HierarchicalPath is an ordered assignment of values to the levels of the
// active hierarchy configuration (e.g. Enterprise=Acme, Site=Plant1). The
// segment order is the level order of the configuration that produced the
// path. Empty values are kept in the segment list but skipped when rendering
// the full path.
type HierarchicalPath struct {
	Segments []PathSegment `json:"segments" yaml:"segments"`
}

// FullPath renders the /-joined path of all non-empty segment values in order.
func (p HierarchicalPath) FullPath() string {
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		if seg.Value != "" {
			parts = append(parts, seg.Value)
		}
	}
	return strings.Join(parts, "/")
}

// Value returns the value assigned to the named level, or "".
func (p HierarchicalPath) Value(level string) string {
	for _, seg := range p.Segments {
		if seg.Level == level {
			return seg.Value
		}
	}
	return ""
}

// DeepestLevel returns the level name of the deepest non-empty segment, or "".
func (p HierarchicalPath) DeepestLevel() string {
	deepest := ""
	for _, seg := range p.Segments {
		if seg.Value != "" {
			deepest = seg.Level
		}
	}
	return deepest
}

// IsEmpty reports whether no segment carries a value.
func (p HierarchicalPath) IsEmpty() bool {
	for _, seg := range p.Segments {
		if seg.Value != "" {
			return false
		}
	}
	return true
}

// Equal compares two paths segment by segment.
func (p HierarchicalPath) Equal(other HierarchicalPath) bool {
	if len(p.Segments) != len(other.Segments) {
		return false
	}
	for i, seg := range p.Segments {
		if other.Segments[i] != seg {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether p's full path equals other's full path or
// extends it by one or more segments.
func (p HierarchicalPath) IsDescendantOf(other HierarchicalPath) bool {
	pf, of := p.FullPath(), other.FullPath()
	if of == "" {
		return true
	}
	return pf == of || strings.HasPrefix(pf, of+"/")
}

// DataPoint is one timestamped leaf value for a topic. Timestamps are UTC
// with millisecond resolution.
type DataPoint struct {
	Topic        string            `json:"topic"`
	Value        interface{}       `json:"value"`
	Timestamp    time.Time         `json:"timestamp"`
	Quality      Quality           `json:"quality,omitempty"`
	SourceSystem string            `json:"sourceSystem,omitempty"`
	ConnectionID string            `json:"connectionId,omitempty"`
	Path         HierarchicalPath  `json:"path,omitempty"`
	UNSName      string            `json:"unsName,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NormalizeTimestamp truncates the timestamp to millisecond resolution in UTC.
// A zero timestamp is replaced with the current time.
func (dp *DataPoint) NormalizeTimestamp() {
	if dp.Timestamp.IsZero() {
		dp.Timestamp = time.Now()
	}
	dp.Timestamp = dp.Timestamp.UTC().Truncate(time.Millisecond)
}

// TopicConfiguration is a registered topic binding: a wire topic attached to
// a hierarchical path and an NS-path. At most one active configuration exists
// per (topic, sourceType) pair; the topic match is case-insensitive.
type TopicConfiguration struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	UNSName    string            `json:"unsName"`
	Path       HierarchicalPath  `json:"path"`
	NSPath     string            `json:"nsPath"`
	SourceType SourceType        `json:"sourceType"`
	IsVerified bool              `json:"isVerified"`
	CreatedAt  time.Time         `json:"createdAt"`
	ModifiedAt time.Time         `json:"modifiedAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ValidationResult is the aggregate outcome of a configuration validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AddError appends an error message and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning appends a warning without affecting validity.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// NewValidationResult returns a result that is valid until an error is added.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}
