package store

import (
	"context"
	"errors"
	"time"

	"unshub/internal/api"
	"unshub/pkg/logging"

	"github.com/cenkalti/backoff/v5"
)

// ErrContention marks a transient store rejection worth retrying. Store
// adapters wrap their driver's busy/conflict errors with it.
var ErrContention = errors.New("store contention")

// RetryingRealtimeStore decorates a realtime store with bounded retry for
// contention errors on the write path. Non-contention errors fail
// immediately; callers log and drop them while still delivering the data
// point to subscribers.
type RetryingRealtimeStore struct {
	inner       api.RealtimeStore
	maxTries    uint
	initialWait time.Duration
}

// NewRetryingRealtimeStore wraps inner with the default policy: 3 attempts,
// 50 ms initial backoff.
func NewRetryingRealtimeStore(inner api.RealtimeStore) *RetryingRealtimeStore {
	return &RetryingRealtimeStore{inner: inner, maxTries: 3, initialWait: 50 * time.Millisecond}
}

// Store writes with retry on contention.
func (s *RetryingRealtimeStore) Store(ctx context.Context, dp api.DataPoint) error {
	operation := func() (struct{}, error) {
		err := s.inner.Store(ctx, dp)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrContention) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.initialWait
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.maxTries))
	if err != nil {
		logging.Warn("Store", "Realtime write for %s failed after retries: %v", dp.Topic, err)
	}
	return err
}

// GetLatest delegates to the inner store.
func (s *RetryingRealtimeStore) GetLatest(ctx context.Context, topic string) (*api.DataPoint, error) {
	return s.inner.GetLatest(ctx, topic)
}

// GetLatestByPath delegates to the inner store.
func (s *RetryingRealtimeStore) GetLatestByPath(ctx context.Context, pathPrefix string) ([]api.DataPoint, error) {
	return s.inner.GetLatestByPath(ctx, pathPrefix)
}

// Delete delegates to the inner store.
func (s *RetryingRealtimeStore) Delete(ctx context.Context, topic string) error {
	return s.inner.Delete(ctx, topic)
}
