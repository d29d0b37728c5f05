package queue

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"unshub/internal/api"
	"unshub/pkg/logging"

	"golang.org/x/sync/semaphore"
)

// ProcessorFunc handles one item. Errors are counted and logged; the item is
// not retried and the lane keeps running.
type ProcessorFunc[T any] func(ctx context.Context, item T) error

// Options configure the lane layout of a Processor.
type Options struct {
	// Lanes is the number of worker channels. Defaults to the logical CPU count.
	Lanes int
	// MaxConcurrentPerLane bounds concurrent processor calls per lane. Default 4.
	MaxConcurrentPerLane int
	// LaneCapacity is the bounded channel size per lane. Default 1000.
	LaneCapacity int
	// PriorityMultiplier scales the priority lane's concurrency relative to
	// MaxConcurrentPerLane. Default 2.
	PriorityMultiplier int
}

func (o Options) withDefaults() Options {
	if o.Lanes <= 0 {
		o.Lanes = runtime.NumCPU()
	}
	if o.MaxConcurrentPerLane <= 0 {
		o.MaxConcurrentPerLane = 4
	}
	if o.LaneCapacity <= 0 {
		o.LaneCapacity = 1000
	}
	if o.PriorityMultiplier <= 0 {
		o.PriorityMultiplier = 2
	}
	return o
}

// Statistics is an immutable snapshot of processor counters.
type Statistics struct {
	Processed     int64
	Errors        int64
	Enqueued      int64
	LaneDepths    []int
	LaneWorkloads []int64
	PriorityDepth int
}

// Processor is a multi-lane bounded-channel worker pool with a priority
// lane. Writers block when all lanes are full (back-pressure, no silent
// drop); per-lane order is channel FIFO but concurrent per-item workers may
// complete out of order.
type Processor[T any] struct {
	opts Options
	name string
	fn   ProcessorFunc[T]

	lanes    []chan T
	priority chan T

	sems        []*semaphore.Weighted
	prioritySem *semaphore.Weighted

	workloads        []atomic.Int64 // queued + in-flight per lane
	priorityWorkload atomic.Int64
	processed        atomic.Int64
	errored          atomic.Int64
	enqueued         atomic.Int64
	rr               atomic.Int64

	gate atomic.Pointer[chan struct{}] // closed channel = running

	runCtx  context.Context
	cancel  context.CancelFunc
	readers sync.WaitGroup
	tasks   sync.WaitGroup

	closed  atomic.Bool
	closeMu sync.RWMutex
}

// New creates a processor for items of type T. The processor function is
// fixed at construction; Start launches the lane readers.
func New[T any](name string, opts Options, fn ProcessorFunc[T]) *Processor[T] {
	opts = opts.withDefaults()
	p := &Processor[T]{
		opts:        opts,
		name:        name,
		fn:          fn,
		lanes:       make([]chan T, opts.Lanes),
		priority:    make(chan T, opts.LaneCapacity),
		sems:        make([]*semaphore.Weighted, opts.Lanes),
		workloads:   make([]atomic.Int64, opts.Lanes),
		prioritySem: semaphore.NewWeighted(int64(opts.PriorityMultiplier * opts.MaxConcurrentPerLane)),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan T, opts.LaneCapacity)
		p.sems[i] = semaphore.NewWeighted(int64(opts.MaxConcurrentPerLane))
	}
	running := make(chan struct{})
	close(running)
	p.gate.Store(&running)
	return p
}

// Start launches one reader per lane plus the priority reader. The context
// bounds in-flight processor calls: cancelling it aborts them cooperatively.
func (p *Processor[T]) Start(ctx context.Context) {
	p.runCtx, p.cancel = context.WithCancel(ctx)
	for i := range p.lanes {
		p.readers.Add(1)
		go p.readLane(i)
	}
	p.readers.Add(1)
	go p.readPriority()
	logging.Info("QueueProcessor", "%s started with %d lanes (capacity %d, %d workers/lane)",
		p.name, p.opts.Lanes, p.opts.LaneCapacity, p.opts.MaxConcurrentPerLane)
}

// Stop closes the writers, drains every queued item through the processor
// function, waits for in-flight calls and releases the readers. Enqueues
// after Stop fail with ErrQueueClosed.
func (p *Processor[T]) Stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	// Wait for in-flight enqueues before closing the channels.
	p.closeMu.Lock()
	for _, lane := range p.lanes {
		close(lane)
	}
	close(p.priority)
	p.closeMu.Unlock()

	p.readers.Wait()
	p.tasks.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	logging.Info("QueueProcessor", "%s stopped (%d processed, %d errors)", p.name, p.processed.Load(), p.errored.Load())
}

// Pause blocks lane readers before their next item until Resume is called.
// Already running processor calls are unaffected.
func (p *Processor[T]) Pause() {
	paused := make(chan struct{})
	old := p.gate.Swap(&paused)
	select {
	case <-*old:
		// was running, now paused
	default:
		// already paused; restore the old gate so Resume matches
		p.gate.Store(old)
		close(paused)
	}
}

// Resume releases readers blocked by Pause.
func (p *Processor[T]) Resume() {
	gate := p.gate.Load()
	select {
	case <-*gate:
		// already running
	default:
		close(*gate)
	}
}

// Enqueue routes the item to the least-loaded lane, or to the priority lane
// when priority is set. It blocks while the target lane is full and returns
// the context error if cancellation is observed first.
func (p *Processor[T]) Enqueue(ctx context.Context, item T, priority bool) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return api.ErrQueueClosed
	}

	if priority {
		p.priorityWorkload.Add(1)
		select {
		case p.priority <- item:
			p.enqueued.Add(1)
			return nil
		case <-ctx.Done():
			p.priorityWorkload.Add(-1)
			return ctx.Err()
		}
	}

	lane := p.leastLoadedLane()
	p.workloads[lane].Add(1)
	select {
	case p.lanes[lane] <- item:
		p.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		p.workloads[lane].Add(-1)
		return ctx.Err()
	}
}

// EnqueueBatch distributes items round-robin across lanes; priority batches
// go entirely to the priority lane.
func (p *Processor[T]) EnqueueBatch(ctx context.Context, items []T, priority bool) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return api.ErrQueueClosed
	}

	for _, item := range items {
		if priority {
			p.priorityWorkload.Add(1)
			select {
			case p.priority <- item:
				p.enqueued.Add(1)
			case <-ctx.Done():
				p.priorityWorkload.Add(-1)
				return ctx.Err()
			}
			continue
		}
		lane := int(p.rr.Add(1)-1) % p.opts.Lanes
		p.workloads[lane].Add(1)
		select {
		case p.lanes[lane] <- item:
			p.enqueued.Add(1)
		case <-ctx.Done():
			p.workloads[lane].Add(-1)
			return ctx.Err()
		}
	}
	return nil
}

func (p *Processor[T]) leastLoadedLane() int {
	best := 0
	bestLoad := p.workloads[0].Load()
	for i := 1; i < len(p.workloads); i++ {
		if load := p.workloads[i].Load(); load < bestLoad {
			best = i
			bestLoad = load
		}
	}
	return best
}

func (p *Processor[T]) readLane(lane int) {
	defer p.readers.Done()
	for item := range p.lanes[lane] {
		p.waitIfPaused()
		// Background context: a queued item is always granted a slot so the
		// drain in Stop can complete; the processor call itself runs under
		// the cancellable run context.
		if err := p.sems[lane].Acquire(context.Background(), 1); err != nil {
			p.workloads[lane].Add(-1)
			continue
		}
		p.tasks.Add(1)
		go func(item T) {
			defer p.tasks.Done()
			defer p.sems[lane].Release(1)
			defer p.workloads[lane].Add(-1)
			p.process(item)
		}(item)
	}
}

func (p *Processor[T]) readPriority() {
	defer p.readers.Done()
	for item := range p.priority {
		p.waitIfPaused()
		if err := p.prioritySem.Acquire(context.Background(), 1); err != nil {
			p.priorityWorkload.Add(-1)
			continue
		}
		p.tasks.Add(1)
		go func(item T) {
			defer p.tasks.Done()
			defer p.prioritySem.Release(1)
			defer p.priorityWorkload.Add(-1)
			p.process(item)
		}(item)
	}
}

func (p *Processor[T]) waitIfPaused() {
	gate := p.gate.Load()
	<-*gate
}

func (p *Processor[T]) process(item T) {
	if err := p.fn(p.runCtx, item); err != nil {
		if p.runCtx.Err() != nil {
			// Cooperative shutdown is not a processing failure.
			return
		}
		p.errored.Add(1)
		errorCounter.WithLabelValues(p.name).Inc()
		logging.Warn("QueueProcessor", "%s: item failed: %v", p.name, err)
		return
	}
	p.processed.Add(1)
	processedCounter.WithLabelValues(p.name).Inc()
}

// GetStatistics returns a counter snapshot including per-lane workloads.
func (p *Processor[T]) GetStatistics() Statistics {
	stats := Statistics{
		Processed:     p.processed.Load(),
		Errors:        p.errored.Load(),
		Enqueued:      p.enqueued.Load(),
		LaneDepths:    make([]int, len(p.lanes)),
		LaneWorkloads: make([]int64, len(p.workloads)),
		PriorityDepth: len(p.priority),
	}
	for i := range p.lanes {
		stats.LaneDepths[i] = len(p.lanes[i])
		stats.LaneWorkloads[i] = p.workloads[i].Load()
	}
	return stats
}
