package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"unshub/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllEnqueuedItemsAreProcessed(t *testing.T) {
	var processed atomic.Int64
	p := New("test", Options{Lanes: 2, MaxConcurrentPerLane: 2, LaneCapacity: 4},
		func(ctx context.Context, item int) error {
			processed.Add(1)
			return nil
		})
	p.Start(context.Background())

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Enqueue(context.Background(), i, false))
	}
	p.Stop()

	assert.Equal(t, int64(20), processed.Load())
	stats := p.GetStatistics()
	assert.Equal(t, int64(20), stats.Processed)
	assert.Equal(t, int64(20), stats.Enqueued)
	assert.Zero(t, stats.Errors)
}

func TestBackPressureBlocksUntilSlotFrees(t *testing.T) {
	release := make(chan struct{})
	var peak, inFlight atomic.Int64
	p := New("test", Options{Lanes: 2, MaxConcurrentPerLane: 2, LaneCapacity: 4},
		func(ctx context.Context, item int) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return nil
		})
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if err := p.Enqueue(context.Background(), i, false); err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
		}
	}()

	// Each lane absorbs 2 in-flight + 1 held by the reader + 4 buffered, so
	// with 2 lanes the 15th enqueue must block until a worker frees a slot.
	select {
	case <-done:
		t.Fatal("all enqueues completed although lanes are saturated")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueues did not unblock after workers freed slots")
	}

	p.Stop()
	assert.Equal(t, int64(20), p.GetStatistics().Processed, "no item may be silently dropped")
	assert.LessOrEqual(t, peak.Load(), int64(2*2), "peak in-flight bounded by lanes x maxConcurrentPerLane")
}

func TestEnqueueObservesCancellationWhenFull(t *testing.T) {
	block := make(chan struct{})
	p := New("test", Options{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 1},
		func(ctx context.Context, item int) error {
			<-block
			return nil
		})
	p.Start(context.Background())
	defer func() {
		close(block)
		p.Stop()
	}()

	// Fill the worker, the reader's held item and the lane buffer.
	for i := 1; i <= 3; i++ {
		require.NoError(t, p.Enqueue(context.Background(), i, false))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Enqueue(ctx, 4, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPriorityLaneHasOwnConcurrency(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	p := New("test", Options{Lanes: 1, MaxConcurrentPerLane: 1, PriorityMultiplier: 2, LaneCapacity: 8},
		func(ctx context.Context, item int) error {
			started.Add(1)
			<-release
			return nil
		})
	p.Start(context.Background())

	// Saturate the single regular lane worker.
	require.NoError(t, p.Enqueue(context.Background(), 0, false))
	// Priority items still start: the priority semaphore has 2x1 slots.
	require.NoError(t, p.Enqueue(context.Background(), 1, true))
	require.NoError(t, p.Enqueue(context.Background(), 2, true))

	require.Eventually(t, func() bool { return started.Load() == 3 },
		time.Second, time.Millisecond, "priority items must run while the regular worker is busy")

	close(release)
	p.Stop()
}

func TestProcessorErrorsAreCountedNotFatal(t *testing.T) {
	var calls atomic.Int64
	p := New("test", Options{Lanes: 1, MaxConcurrentPerLane: 1},
		func(ctx context.Context, item int) error {
			calls.Add(1)
			if item%2 == 0 {
				return errors.New("boom")
			}
			return nil
		})
	p.Start(context.Background())

	for i := 0; i < 6; i++ {
		require.NoError(t, p.Enqueue(context.Background(), i, false))
	}
	p.Stop()

	stats := p.GetStatistics()
	assert.Equal(t, int64(6), calls.Load(), "lane must survive processor errors")
	assert.Equal(t, int64(3), stats.Errors)
	assert.Equal(t, int64(3), stats.Processed)
}

func TestEnqueueAfterStopFails(t *testing.T) {
	p := New("test", Options{Lanes: 1}, func(ctx context.Context, item int) error { return nil })
	p.Start(context.Background())
	p.Stop()

	err := p.Enqueue(context.Background(), 1, false)
	assert.ErrorIs(t, err, api.ErrQueueClosed)
	err = p.EnqueueBatch(context.Background(), []int{1, 2}, false)
	assert.ErrorIs(t, err, api.ErrQueueClosed)
}

func TestPauseHoldsItemsUntilResume(t *testing.T) {
	var processed atomic.Int64
	p := New("test", Options{Lanes: 1, MaxConcurrentPerLane: 1},
		func(ctx context.Context, item int) error {
			processed.Add(1)
			return nil
		})
	p.Start(context.Background())

	p.Pause()
	require.NoError(t, p.Enqueue(context.Background(), 1, false))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, processed.Load(), "paused processor must not run items")

	p.Resume()
	require.Eventually(t, func() bool { return processed.Load() == 1 },
		time.Second, time.Millisecond)
	p.Stop()
}

func TestBatchRoundRobinSpreadsAcrossLanes(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]bool)
	p := New("test", Options{Lanes: 4, MaxConcurrentPerLane: 2},
		func(ctx context.Context, item int) error {
			mu.Lock()
			seen[item] = true
			mu.Unlock()
			return nil
		})
	p.Start(context.Background())

	items := make([]int, 16)
	for i := range items {
		items[i] = i
	}
	require.NoError(t, p.EnqueueBatch(context.Background(), items, false))
	p.Stop()

	assert.Len(t, seen, 16)
}
