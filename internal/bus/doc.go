// Package bus implements the typed in-process event bus that wires the
// unshub core together.
//
// The bus keeps one subscriber list per concrete event type, keyed by the
// event's reflect.Type at registration time; publishing performs a single
// map lookup and iterates a snapshot of the list. Delivery is synchronous
// and fire-and-forget: at-most-once per subscription, no persistence, no
// cross-type ordering. Subscribers that perform long work must offload onto
// the queue processor rather than block the publisher.
//
// Failure model: a subscriber panic is recovered, logged under the "Bus"
// subsystem, and never propagates to the publisher or to other subscribers.
package bus
