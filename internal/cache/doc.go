// Package cache implements the multi-level cache for topic metadata and
// latest values.
//
// Three tiers differ in representation and age: L1 holds decoded entries, L2
// holds gzip-compressed JSON blobs, L3 holds metadata markers with no
// payload. Reads probe L1, L2 (promoting hits into L1), consult the L3 hint,
// and finally fall through to the topic repository, populating all tiers on a
// hit. A missing key is a repository read, not an error condition of the
// cache itself.
//
// Periodic maintenance demotes idle L1 entries into L2 and idle L2 entries
// into L3 markers, dropping anything past its demote window or over the tier
// cap (least recently accessed first). A separate warming loop decodes the
// most accessed warm entries back into L1.
//
// The cache subscribes to the event bus at attachment and unsubscribes on
// Stop: TopicAddedEvent warms the new topic, TopicDataUpdatedEvent upserts
// the latest value, configuration updates and removals invalidate all tiers.
package cache
