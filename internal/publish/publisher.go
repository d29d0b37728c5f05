package publish

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/internal/connection"
	"unshub/internal/hierarchy"
	"unshub/pkg/logging"
)

const subscriberID = "publish"

// emitState is the per-(output, topic) change-detection and rate-limit
// bookkeeping.
type emitState struct {
	lastValue   interface{}
	lastQuality api.Quality
	lastEmit    time.Time
	hasEmitted  bool
	pending     *api.DataPoint
	timer       *time.Timer
}

// binding is one live output on an acquired connection.
type binding struct {
	handle *connection.Handle
	out    connection.OutputConfiguration
	states map[string]*emitState
}

// Publisher forwards stored data points to outbound connections. Every
// output applies change detection (unchanged values are dropped) and a
// minimum emit interval; a value suppressed by the rate limit is parked and
// flushed when the interval elapses, so the latest value always gets out.
type Publisher struct {
	manager  *connection.Manager
	events   *bus.Bus
	registry *hierarchy.Registry

	mu       sync.Mutex
	bindings []*binding
	handles  []*connection.Handle

	sub    bus.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewPublisher creates a publisher; Start acquires the outbound connections.
func NewPublisher(manager *connection.Manager, events *bus.Bus, registry *hierarchy.Registry) *Publisher {
	return &Publisher{
		manager:  manager,
		events:   events,
		registry: registry,
		stopCh:   make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start acquires every enabled connection and registers its outputs, then
// begins consuming data updates from the bus. Model outputs get their
// republish loops.
func (p *Publisher) Start(ctx context.Context, configs []connection.ConnectionConfiguration) error {
	var errs []error
	for _, cfg := range configs {
		if !cfg.IsEnabled {
			continue
		}
		handle, err := p.manager.Acquire(ctx, subscriberID, cfg)
		if err != nil {
			logging.Error("Publish", err, "Connection %s not started", cfg.ID)
			errs = append(errs, fmt.Errorf("connection %s: %w", cfg.ID, err))
			continue
		}
		p.mu.Lock()
		p.handles = append(p.handles, handle)
		p.mu.Unlock()
		for _, out := range cfg.Outputs {
			if !out.IsEnabled {
				continue
			}
			if err := handle.ConfigureOutput(out); err != nil {
				logging.Warn("Publish", "Output %s on %s rejected: %v", out.ID, cfg.ID, err)
				continue
			}
			b := &binding{handle: handle, out: out, states: make(map[string]*emitState)}
			p.mu.Lock()
			p.bindings = append(p.bindings, b)
			p.mu.Unlock()
			if out.PublishModel && out.RepublishIntervalMinutes > 0 {
				p.wg.Add(1)
				go p.modelLoop(b)
			}
		}
	}

	p.sub = bus.Subscribe(p.events, "publisher", func(ctx context.Context, ev api.TopicDataUpdatedEvent) {
		p.handleUpdate(ev)
	})
	return errors.Join(errs...)
}

// Stop detaches from the bus, cancels pending flushes and releases the
// connections.
func (p *Publisher) Stop() {
	p.events.Unsubscribe(p.sub)
	close(p.stopCh)

	p.mu.Lock()
	for _, b := range p.bindings {
		for _, st := range b.states {
			if st.timer != nil {
				st.timer.Stop()
				st.timer = nil
			}
		}
	}
	handles := p.handles
	p.bindings = nil
	p.handles = nil
	p.mu.Unlock()

	p.wg.Wait()
	for _, h := range handles {
		p.manager.Release(h)
	}
}

func (p *Publisher) handleUpdate(ev api.TopicDataUpdatedEvent) {
	p.mu.Lock()
	bindings := make([]*binding, len(p.bindings))
	copy(bindings, p.bindings)
	p.mu.Unlock()

	for _, b := range bindings {
		if b.out.PublishModel {
			continue
		}
		if !outputCovers(b.out, ev.Topic) {
			continue
		}
		p.decide(b, ev.Topic, ev.Point)
	}
}

func outputCovers(out connection.OutputConfiguration, topic string) bool {
	if len(out.TopicFilters) == 0 {
		return true
	}
	for _, f := range out.TopicFilters {
		if connection.MatchTopicFilter(f, topic) {
			return true
		}
	}
	return false
}

// decide applies change detection and the rate limit, emitting immediately
// or parking the point for the trailing flush.
func (p *Publisher) decide(b *binding, topic string, dp api.DataPoint) {
	p.mu.Lock()
	st, ok := b.states[topic]
	if !ok {
		st = &emitState{}
		b.states[topic] = st
	}

	if b.out.EmitOnChange && st.hasEmitted && sameValue(st, dp) {
		st.pending = nil
		p.mu.Unlock()
		return
	}

	interval := time.Duration(b.out.MinEmitIntervalMs) * time.Millisecond
	now := p.now()
	if interval > 0 && st.hasEmitted && now.Sub(st.lastEmit) < interval {
		point := dp
		st.pending = &point
		if st.timer == nil {
			remaining := interval - now.Sub(st.lastEmit)
			st.timer = time.AfterFunc(remaining, func() { p.flush(b, topic) })
		}
		p.mu.Unlock()
		return
	}

	p.mu.Unlock()
	if p.send(b, dp) {
		p.mu.Lock()
		p.markEmitted(st, dp, p.now())
		p.mu.Unlock()
	}
}

// flush emits the newest parked point once the emit interval has elapsed.
func (p *Publisher) flush(b *binding, topic string) {
	p.mu.Lock()
	st, ok := b.states[topic]
	if !ok || st.pending == nil {
		if ok {
			st.timer = nil
		}
		p.mu.Unlock()
		return
	}
	st.timer = nil
	dp := *st.pending
	st.pending = nil

	if b.out.EmitOnChange && sameValue(st, dp) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	if p.send(b, dp) {
		p.mu.Lock()
		p.markEmitted(st, dp, p.now())
		p.mu.Unlock()
	}
}

// markEmitted records the delivered point. Only successful sends update the
// change-detection state, so a value the transport rejected is re-attempted
// the next time it arrives.
func (p *Publisher) markEmitted(st *emitState, dp api.DataPoint, now time.Time) {
	st.lastValue = dp.Value
	st.lastQuality = dp.Quality
	st.lastEmit = now
	st.hasEmitted = true
	st.pending = nil
}

func (p *Publisher) send(b *binding, dp api.DataPoint) bool {
	if !b.handle.SendData(dp, b.out.ID) {
		logging.Warn("Publish", "Output %s rejected %s", b.out.ID, dp.Topic)
		return false
	}
	publishedCounter.WithLabelValues(b.out.ID).Inc()
	return true
}

func sameValue(st *emitState, dp api.DataPoint) bool {
	return reflect.DeepEqual(st.lastValue, dp.Value) && st.lastQuality == dp.Quality
}

// modelLoop republishes the namespace structure on the output's schedule.
func (p *Publisher) modelLoop(b *binding) {
	defer p.wg.Done()
	interval := time.Duration(b.out.RepublishIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishModel(b)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.publishModel(b)
		}
	}
}

// publishModel sends the composed namespace forest as one data point.
func (p *Publisher) publishModel(b *binding) {
	topic := b.out.ModelTopic
	if topic == "" {
		topic = "uns/model"
	}
	value := interface{}(p.registry.NamespaceStructure())
	if b.out.ModelAttributeName != "" {
		value = map[string]interface{}{b.out.ModelAttributeName: value}
	}
	p.send(b, api.DataPoint{
		Topic:     topic,
		Value:     value,
		Timestamp: p.now(),
		Quality:   api.QualityGood,
	})
}
