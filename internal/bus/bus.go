// Package bus implements the Event Bus / Fan-out: a process-local
// publish/subscribe over typed topics (session:<id>, raid:<id>,
// agent:<id>), each subscription backed by its own bounded delivery
// queue drained by a dedicated goroutine so a slow subscriber never
// delays delivery to others on the same topic.
//
// Grounded on goclaw's internal/bus/types.go for the Event wire shape,
// generalized from a single outbound-message fan-out to per-subscription
// bounded queues so one slow subscriber can't head-of-line block the rest.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/telemetry"
)

// Event is one published occurrence. Payload is JSON-marshalable.
type Event struct {
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload,omitempty"`
}

const defaultQueueDepth = 256

// Deliverer pushes an Event to a connection, e.g. over a WebSocket. It
// must respect ctx's deadline; the bus treats any error or deadline
// exceeded as a dropped delivery for that subscription only.
type Deliverer func(ctx context.Context, ev Event) error

type subscription struct {
	id       uuid.UUID
	connID   string
	topic    string
	queue    chan Event
	deliver  Deliverer
	stopOnce sync.Once
	stop     chan struct{}
}

// Bus owns every live subscription, grouped by topic for publish and by
// connection id for close().
type Bus struct {
	mu            sync.RWMutex
	byTopic       map[string]map[uuid.UUID]*subscription
	byConn        map[string]map[uuid.UUID]struct{}
	writeTimeout  time.Duration
	queueDepth    int
}

func New() *Bus {
	return &Bus{
		byTopic:      make(map[string]map[uuid.UUID]*subscription),
		byConn:       make(map[string]map[uuid.UUID]struct{}),
		writeTimeout: 2 * time.Second,
		queueDepth:   defaultQueueDepth,
	}
}

// Subscribe registers deliver to receive events published to topic from
// connID's subscription. Authentication (token -> internal_id) happens
// one layer up, in internal/gatewayhttp, before Subscribe is ever called.
func (b *Bus) Subscribe(connID, topic string, deliver Deliverer) uuid.UUID {
	id := uuid.New()
	sub := &subscription{
		id:      id,
		connID:  connID,
		topic:   topic,
		queue:   make(chan Event, b.queueDepth),
		deliver: deliver,
		stop:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.byTopic[topic] == nil {
		b.byTopic[topic] = make(map[uuid.UUID]*subscription)
	}
	b.byTopic[topic][id] = sub
	if b.byConn[connID] == nil {
		b.byConn[connID] = make(map[uuid.UUID]struct{})
	}
	b.byConn[connID][id] = struct{}{}
	b.mu.Unlock()

	go b.drain(sub)
	return id
}

func (b *Bus) drain(sub *subscription) {
	for {
		select {
		case <-sub.stop:
			return
		case ev := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
			err := sub.deliver(ctx, ev)
			cancel()
			if err != nil {
				telemetry.BusDeliveryDroppedTotal.Inc()
			}
		}
	}
}

// Publish enqueues event into every subscription currently on topic.
// A full subscription queue drops the event for that subscription only;
// delivery to other subscriptions on the topic is unaffected.
func (b *Bus) Publish(topic string, event Event) {
	event.Topic = topic

	b.mu.RLock()
	subs := b.byTopic[topic]
	targets := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- event:
		default:
			telemetry.BusDeliveryDroppedTotal.Inc()
		}
	}
}

// Unsubscribe removes one subscription and stops its drain goroutine.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(id)
}

func (b *Bus) unsubscribeLocked(id uuid.UUID) {
	for topic, subs := range b.byTopic {
		sub, ok := subs[id]
		if !ok {
			continue
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.byTopic, topic)
		}
		if conn, ok := b.byConn[sub.connID]; ok {
			delete(conn, id)
			if len(conn) == 0 {
				delete(b.byConn, sub.connID)
			}
		}
		sub.stopOnce.Do(func() { close(sub.stop) })
		return
	}
}

// Close drops every subscription owned by connID.
func (b *Bus) Close(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.byConn[connID] {
		b.unsubscribeLocked(id)
	}
}

// SubscriberCount reports the live subscription count, for GET /health.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.byTopic {
		n += len(subs)
	}
	return n
}

// Topic builders for the bus's topic namespace.
func SessionTopic(id string) string { return "session:" + id }
func RaidTopic(id string) string    { return "raid:" + id }
func AgentTopic(id string) string   { return "agent:" + id }
