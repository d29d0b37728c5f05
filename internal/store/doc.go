// Package store provides the in-process implementations of the realtime and
// historical store surfaces the core consumes.
//
// MemoryRealtimeStore holds the latest value per topic; MemoryHistoricalStore
// holds per-topic series with windowed queries and archiving. Both are safe
// for concurrent use from the queue processor lanes. NoopHistoricalStore
// satisfies the historical surface while discarding everything, so
// historical storage can be disabled globally without special-casing the
// pipeline.
//
// RetryingRealtimeStore adds the write-path retry policy: contention errors
// are retried a bounded number of times with exponential backoff, anything
// else fails fast so the caller can log and drop without stalling a lane.
package store
