package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/pkg/logging"
)

// Options are the tier caps, idle ages and loop intervals of the cache.
type Options struct {
	L1Capacity int
	L2Capacity int
	L3Capacity int

	L1MaxIdle      time.Duration // eviction age for the hot tier
	L1DemoteWindow time.Duration // expired L1 items younger than this move to L2
	L2MaxIdle      time.Duration
	L2DemoteWindow time.Duration // expired L2 items younger than this move to L3
	L3MaxIdle      time.Duration

	MaintenanceInterval time.Duration
	WarmingInterval     time.Duration
	WarmTopK            int
}

// DefaultOptions returns the standard tier sizing: L1 10k entries / 15 min,
// L2 50k / 2 h, L3 100k / 24 h, maintenance every 5 min, warming every 10 min.
func DefaultOptions() Options {
	return Options{
		L1Capacity:          10_000,
		L2Capacity:          50_000,
		L3Capacity:          100_000,
		L1MaxIdle:           15 * time.Minute,
		L1DemoteWindow:      30 * time.Minute,
		L2MaxIdle:           2 * time.Hour,
		L2DemoteWindow:      4 * time.Hour,
		L3MaxIdle:           24 * time.Hour,
		MaintenanceInterval: 5 * time.Minute,
		WarmingInterval:     10 * time.Minute,
		WarmTopK:            100,
	}
}

// Source is the read-through backend: the topic repository view the cache
// falls back to on a full miss.
type Source interface {
	Lookup(topic string) (api.TopicConfiguration, bool)
}

// Stats is an immutable snapshot of cache counters.
type Stats struct {
	L1Size, L2Size, L3Size           int
	L1Hits, L2Hits, L3Hints          int64
	Misses, SourceReads              int64
	Promotions, Demotions, Evictions int64
}

// Manager is the multi-level cache for topic metadata and latest values.
// Tier maps are concurrent; per-entry counters are atomic. A missing key is
// not an error: it becomes a repository read.
type Manager struct {
	opts   Options
	source Source

	l1 sync.Map // key -> *l1Item
	l2 sync.Map // key -> *l2Item
	l3 sync.Map // key -> *l3Item

	l1Hits, l2Hits, l3Hints          atomic.Int64
	misses, sourceReads              atomic.Int64
	promotions, demotions, evictions atomic.Int64

	sf singleflight.Group

	subs []bus.Subscription
	b    *bus.Bus

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a cache backed by the given read-through source.
func NewManager(source Source, opts Options) *Manager {
	return &Manager{
		opts:   opts,
		source: source,
		stopCh: make(chan struct{}),
	}
}

// AttachBus subscribes the cache to the domain events that drive
// invalidation. Subscriptions are released by Stop.
func (m *Manager) AttachBus(b *bus.Bus) {
	m.b = b
	m.subs = append(m.subs,
		bus.Subscribe(b, "cache.topicAdded", func(ctx context.Context, e api.TopicAddedEvent) {
			m.Warm(e.Config.Topic, Entry{Config: e.Config})
		}),
		bus.Subscribe(b, "cache.dataUpdated", func(ctx context.Context, e api.TopicDataUpdatedEvent) {
			m.UpsertLatest(e.Topic, e.Point)
		}),
		bus.Subscribe(b, "cache.configUpdated", func(ctx context.Context, e api.TopicConfigurationUpdatedEvent) {
			m.Invalidate(e.Config.Topic)
		}),
		bus.Subscribe(b, "cache.topicRemoved", func(ctx context.Context, e api.TopicRemovedEvent) {
			m.Invalidate(e.Topic)
		}),
	)
}

// Start launches the maintenance and warming loops.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.loop(ctx, m.opts.MaintenanceInterval, m.runMaintenance)
	go m.loop(ctx, m.opts.WarmingInterval, m.runWarming)
}

// Stop terminates the loops and detaches from the bus.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	if m.b != nil {
		for _, sub := range m.subs {
			m.b.Unsubscribe(sub)
		}
		m.subs = nil
	}
}

func (m *Manager) loop(ctx context.Context, interval time.Duration, fn func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Get serves the entry for key: L1, then L2 (with promotion), then the L3
// hint, then the read-through source. On a source hit all three tiers are
// populated.
func (m *Manager) Get(ctx context.Context, key string) (Entry, error) {
	if v, ok := m.l1.Load(key); ok {
		item := v.(*l1Item)
		if item.idle() <= m.opts.L1MaxIdle {
			item.touch()
			m.l1Hits.Add(1)
			hitCounter.WithLabelValues("l1").Inc()
			return *item.entry.Load(), nil
		}
		m.l1.Delete(key)
	}

	if v, ok := m.l2.Load(key); ok {
		item := v.(*l2Item)
		if item.idle() <= m.opts.L2MaxIdle {
			entry, err := decodeEntry(item.blob)
			if err == nil {
				item.touch()
				m.l2Hits.Add(1)
				hitCounter.WithLabelValues("l2").Inc()
				m.l1.Store(key, newL1Item(entry))
				m.promotions.Add(1)
				return entry, nil
			}
			logging.Warn("Cache", "Dropping undecodable L2 entry for %s: %v", key, err)
		}
		m.l2.Delete(key)
	}

	if v, ok := m.l3.Load(key); ok {
		// Metadata marker only: a hint that the source likely has the key.
		v.(*l3Item).lastAccessed.Store(time.Now().UnixMilli())
		m.l3Hints.Add(1)
		hitCounter.WithLabelValues("l3").Inc()
	}

	// Concurrent misses for the same key collapse into one source read.
	m.sourceReads.Add(1)
	v, err, _ := m.sf.Do(key, func() (interface{}, error) {
		cfg, ok := m.source.Lookup(key)
		if !ok {
			return nil, api.NewTopicNotFoundError(key)
		}
		entry := Entry{Config: cfg}
		m.populateAllTiers(key, entry)
		return entry, nil
	})
	if err != nil {
		m.misses.Add(1)
		missCounter.Inc()
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (m *Manager) populateAllTiers(key string, entry Entry) {
	m.l1.Store(key, newL1Item(entry))
	if blob, err := encodeEntry(entry); err == nil {
		m.l2.Store(key, newL2Item(blob, 1))
	}
	m.l3.Store(key, newL3Item())
}

// Warm inserts the entry into the hot tier (and the warm tier).
func (m *Manager) Warm(key string, entry Entry) {
	m.l1.Store(key, newL1Item(entry))
	if blob, err := encodeEntry(entry); err == nil {
		m.l2.Store(key, newL2Item(blob, 1))
	}
}

// UpsertLatest updates the latest-value part of a topic's entry, creating the
// entry from the source when the topic is not cached yet.
func (m *Manager) UpsertLatest(key string, dp api.DataPoint) {
	if v, ok := m.l1.Load(key); ok {
		item := v.(*l1Item)
		entry := *item.entry.Load()
		entry.Latest = &dp
		item.entry.Store(&entry)
		item.touch()
		return
	}
	entry := Entry{Latest: &dp}
	if cfg, ok := m.source.Lookup(key); ok {
		entry.Config = cfg
	}
	m.l1.Store(key, newL1Item(entry))
}

// Invalidate removes the key from all tiers.
func (m *Manager) Invalidate(key string) {
	m.l1.Delete(key)
	m.l2.Delete(key)
	m.l3.Delete(key)
}

// runMaintenance evicts expired and over-cap items per tier, demoting items
// still inside their demote window instead of dropping them.
func (m *Manager) runMaintenance() {
	now := time.Now().UnixMilli()

	// L1: expired items younger than the demote window move to L2.
	m.rangeL1(func(key string, item *l1Item) {
		idle := time.Duration(now-item.lastAccessed.Load()) * time.Millisecond
		if idle <= m.opts.L1MaxIdle {
			return
		}
		m.l1.Delete(key)
		if idle < m.opts.L1DemoteWindow {
			if blob, err := encodeEntry(*item.entry.Load()); err == nil {
				m.l2.Store(key, newL2Item(blob, item.accessCount.Load()))
				m.demotions.Add(1)
				return
			}
		}
		m.evictions.Add(1)
	})
	m.enforceCap(&m.l1, m.opts.L1Capacity, func(v interface{}) int64 { return v.(*l1Item).lastAccessed.Load() })

	// L2: expired items younger than their demote window become L3 markers.
	m.rangeL2(func(key string, item *l2Item) {
		idle := time.Duration(now-item.lastAccessed.Load()) * time.Millisecond
		if idle <= m.opts.L2MaxIdle {
			return
		}
		m.l2.Delete(key)
		if idle < m.opts.L2DemoteWindow {
			m.l3.Store(key, newL3Item())
			m.demotions.Add(1)
			return
		}
		m.evictions.Add(1)
	})
	m.enforceCap(&m.l2, m.opts.L2Capacity, func(v interface{}) int64 { return v.(*l2Item).lastAccessed.Load() })

	// L3: markers simply expire.
	m.l3.Range(func(k, v interface{}) bool {
		if v.(*l3Item).idle() > m.opts.L3MaxIdle {
			m.l3.Delete(k)
			m.evictions.Add(1)
		}
		return true
	})
	m.enforceCap(&m.l3, m.opts.L3Capacity, func(v interface{}) int64 { return v.(*l3Item).lastAccessed.Load() })
}

// runWarming promotes the top-K most accessed warm entries not already hot.
func (m *Manager) runWarming() {
	type candidate struct {
		key   string
		item  *l2Item
		count int64
	}
	var candidates []candidate
	m.l2.Range(func(k, v interface{}) bool {
		key := k.(string)
		if _, hot := m.l1.Load(key); hot {
			return true
		}
		item := v.(*l2Item)
		candidates = append(candidates, candidate{key: key, item: item, count: item.accessCount.Load()})
		return true
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })

	limit := m.opts.WarmTopK
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for _, c := range candidates[:limit] {
		entry, err := decodeEntry(c.item.blob)
		if err != nil {
			m.l2.Delete(c.key)
			continue
		}
		m.l1.Store(c.key, newL1Item(entry))
		m.promotions.Add(1)
	}
	if limit > 0 {
		logging.Debug("Cache", "Warmed %d entries from L2", limit)
	}
}

// enforceCap drops the least recently accessed items beyond the capacity.
func (m *Manager) enforceCap(tier *sync.Map, capacity int, lastAccess func(interface{}) int64) {
	type aged struct {
		key  interface{}
		last int64
	}
	var items []aged
	tier.Range(func(k, v interface{}) bool {
		items = append(items, aged{key: k, last: lastAccess(v)})
		return true
	})
	over := len(items) - capacity
	if over <= 0 {
		return
	}
	sort.Slice(items, func(i, j int) bool { return items[i].last < items[j].last })
	for _, it := range items[:over] {
		tier.Delete(it.key)
		m.evictions.Add(1)
	}
}

func (m *Manager) rangeL1(fn func(key string, item *l1Item)) {
	m.l1.Range(func(k, v interface{}) bool {
		fn(k.(string), v.(*l1Item))
		return true
	})
}

func (m *Manager) rangeL2(fn func(key string, item *l2Item)) {
	m.l2.Range(func(k, v interface{}) bool {
		fn(k.(string), v.(*l2Item))
		return true
	})
}

// GetStatistics returns an immutable counter snapshot.
func (m *Manager) GetStatistics() Stats {
	count := func(tier *sync.Map) int {
		n := 0
		tier.Range(func(_, _ interface{}) bool { n++; return true })
		return n
	}
	return Stats{
		L1Size:      count(&m.l1),
		L2Size:      count(&m.l2),
		L3Size:      count(&m.l3),
		L1Hits:      m.l1Hits.Load(),
		L2Hits:      m.l2Hits.Load(),
		L3Hints:     m.l3Hints.Load(),
		Misses:      m.misses.Load(),
		SourceReads: m.sourceReads.Load(),
		Promotions:  m.promotions.Load(),
		Demotions:   m.demotions.Load(),
		Evictions:   m.evictions.Load(),
	}
}
