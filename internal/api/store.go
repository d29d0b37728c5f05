package api

import (
	"context"
	"time"
)

// RealtimeStore holds the latest value per topic. Implementations must be
// safe for concurrent use; the queue processor writes from many lanes.
type RealtimeStore interface {
	// Store upserts the latest data point for its topic.
	Store(ctx context.Context, dp DataPoint) error

	// GetLatest returns the latest data point for the topic, or a
	// NotFoundError if the topic has never been stored.
	GetLatest(ctx context.Context, topic string) (*DataPoint, error)

	// GetLatestByPath returns the latest points of all topics whose
	// hierarchical full path equals or descends from pathPrefix.
	GetLatestByPath(ctx context.Context, pathPrefix string) ([]DataPoint, error)

	// Delete removes the stored value for the topic.
	Delete(ctx context.Context, topic string) error
}

// HistoricalStore persists the time series per topic. A no-op implementation
// is supported so historical storage can be disabled globally.
type HistoricalStore interface {
	// Store appends a data point to the topic's series.
	Store(ctx context.Context, dp DataPoint) error

	// GetHistory returns points for the topic in [from, to], oldest first.
	GetHistory(ctx context.Context, topic string, from, to time.Time) ([]DataPoint, error)

	// GetHistoryByPath returns points for all topics under pathPrefix in
	// [from, to], oldest first.
	GetHistoryByPath(ctx context.Context, pathPrefix string, from, to time.Time) ([]DataPoint, error)

	// Archive drops points older than before and returns how many were removed.
	Archive(ctx context.Context, before time.Time) (int, error)
}
