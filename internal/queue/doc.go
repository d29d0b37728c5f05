// Package queue implements the parallel queue processor decoupling fast
// ingestion from slower downstream work.
//
// A Processor owns one priority channel plus N worker channels, all bounded.
// Each channel has a single reader that acquires a per-lane semaphore slot
// per item and runs the processor function asynchronously, so writers feel
// back-pressure when lanes fill up while per-item work still parallelizes.
// The priority lane runs at a configurable multiple of the per-lane
// concurrency.
//
// No global ordering is promised: per-lane order is channel FIFO, but
// concurrent per-item workers may complete out of order. Callers that need
// strict ordering sequence inside the processor function or configure
// MaxConcurrentPerLane=1.
//
// Processor failures are counted and logged; they never kill a lane and the
// item is not retried. Cancellation of the Start context aborts in-flight
// calls cooperatively; Stop drains everything already queued before
// releasing the readers, so accepted items are never silently dropped.
package queue
