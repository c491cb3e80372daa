package bus

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AnyEvent subscribes a handler to every event type of a topic.
const AnyEvent = "*"

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
	meta    map[string]any
}

func (e simpleEvent) Type() string             { return e.typeStr }
func (e simpleEvent) Source() string           { return e.source }
func (e simpleEvent) Timestamp() time.Time     { return e.ts }
func (e simpleEvent) Data() any                { return e.data }
func (e simpleEvent) Metadata() map[string]any { return e.meta }

// NewEvent creates a basic Event.
func NewEvent(typ, src string, data any, metadata map[string]any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data, meta: metadata}
}

type subscription struct {
	id        string
	seq       uint64
	topic     string
	eventType string
	handler   EventHandler
	active    atomic.Bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) Topic() string     { return s.topic }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.active.Swap(false) && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// topic keeps subscriptions per event type in subscription order, so a
// publisher always sees its handlers run in the same sequence.
type topic struct {
	byType map[string][]*subscription
}

func (t *topic) subscribers() int {
	n := 0
	for _, subs := range t.byType {
		n += len(subs)
	}
	return n
}

type inMemoryBus struct {
	mu        sync.RWMutex
	topics    map[string]*topic
	observers []EventBusObserver
	nextSeq   uint64

	published  atomic.Uint64
	delivered  atomic.Uint64
	errorCount atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a new EventBus instance.
func New() EventBus {
	return &inMemoryBus{topics: make(map[string]*topic)}
}

func (b *inMemoryBus) Publish(event Event) error {
	return b.deliver("", event)
}

func (b *inMemoryBus) PublishToTopic(topic string, event Event) error {
	return b.deliver(topic, event)
}

func (b *inMemoryBus) PublishWithFilters(event Event, filters ...EventFilter) error {
	for _, f := range filters {
		if !f(event) {
			b.dropped.Add(1)
			return nil
		}
	}
	return b.Publish(event)
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	return b.SubscribeTopic("", eventType, handler)
}

func (b *inMemoryBus) SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(topic)
	b.nextSeq++
	s := &subscription{
		id:        uuid.NewString(),
		seq:       b.nextSeq,
		topic:     topic,
		eventType: eventType,
		handler:   handler,
	}
	s.active.Store(true)
	s.cancel = func() { b.remove(s) }
	t.byType[eventType] = append(t.byType[eventType], s)
	return s, nil
}

func (b *inMemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[s.topic]
	if !ok {
		return
	}
	t.byType[s.eventType] = slices.DeleteFunc(t.byType[s.eventType], func(o *subscription) bool {
		return o == s
	})
	if len(t.byType[s.eventType]) == 0 {
		delete(t.byType, s.eventType)
	}
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) CreateTopic(name string) error {
	b.mu.Lock()
	b.topicLocked(name)
	b.mu.Unlock()
	return nil
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.observers, obs) {
		b.observers = append(b.observers, obs)
	}
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	b.observers = slices.DeleteFunc(b.observers, func(o EventBusObserver) bool { return o == obs })
	b.mu.Unlock()
}

func (b *inMemoryBus) GetMetrics() EventBusMetrics {
	b.mu.RLock()
	var subs uint64
	for _, t := range b.topics {
		subs += uint64(t.subscribers())
	}
	topics := uint64(len(b.topics))
	b.mu.RUnlock()

	return EventBusMetrics{
		Published:         b.published.Load(),
		DeliveredHandlers: b.delivered.Load(),
		Errors:            b.errorCount.Load(),
		DroppedByFilters:  b.dropped.Load(),
		SubscribersActive: subs,
		Topics:            topics,
	}
}

func (b *inMemoryBus) GetTopics() []TopicInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TopicInfo, 0, len(b.topics))
	for name, t := range b.topics {
		out = append(out, TopicInfo{Name: name, EventTypes: len(t.byType), Subs: t.subscribers()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *inMemoryBus) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{byType: make(map[string][]*subscription)}
		b.topics[name] = t
	}
	return t
}

// matching returns the handlers for one event in subscription order, typed
// subscribers and AnyEvent subscribers interleaved by when they subscribed.
func (b *inMemoryBus) matching(topicName, eventType string) ([]*subscription, []EventBusObserver) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var subs []*subscription
	if t, ok := b.topics[topicName]; ok {
		subs = append(subs, t.byType[eventType]...)
		if eventType != AnyEvent {
			subs = append(subs, t.byType[AnyEvent]...)
		}
	}
	slices.SortFunc(subs, func(a, c *subscription) int {
		switch {
		case a.seq < c.seq:
			return -1
		case a.seq > c.seq:
			return 1
		}
		return 0
	})
	return subs, slices.Clone(b.observers)
}

func (b *inMemoryBus) deliver(topicName string, event Event) error {
	if event == nil {
		return ErrNilEvent
	}
	start := time.Now()
	etype := event.Type()
	subs, observers := b.matching(topicName, etype)

	for _, obs := range observers {
		obs.OnPublish(topicName, etype, event)
	}

	var all error
	handled := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		handled++
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	b.published.Add(1)
	b.delivered.Add(uint64(handled))
	if all != nil {
		b.errorCount.Add(1)
	}

	if len(observers) > 0 {
		dur := time.Since(start)
		for _, obs := range observers {
			obs.OnDelivered(topicName, etype, handled, all, dur)
		}
	}
	return all
}
