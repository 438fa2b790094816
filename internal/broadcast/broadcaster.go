package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Event is the envelope fanned out to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Subscriber is one registered delivery queue. Events arrive on Events()
// in publish order. The channel is closed when the subscription ends.
type Subscriber struct {
	id      uuid.UUID
	room    string // empty for global stream subscribers
	ch      chan Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// ID returns the subscriber's handle id.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Room returns the room key the subscriber joined, or "" for the global
// stream.
func (s *Subscriber) Room() string {
	return s.room
}

// Dropped reports how many events were discarded because this subscriber's
// queue was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Sent reports how many events were enqueued for this subscriber.
func (s *Subscriber) Sent() uint64 {
	return s.sent.Load()
}

const defaultQueueDepth = 64

// Broadcaster fans events out to long-lived subscribers. Publish enqueues
// to every matching subscriber and returns immediately: a full queue drops
// the event for that subscriber only, so one slow consumer can never stall
// delivery to the rest or block the publisher.
//
// Publishers hold the read lock while enqueueing and Unsubscribe closes the
// channel under the write lock after removal, so a subscriber removed from
// the registry never receives another event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscriber
	closed bool

	logger     *slog.Logger
	queueDepth int
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the broadcaster logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithQueueDepth sets the per-subscriber queue depth.
func WithQueueDepth(n int) Option {
	return func(b *Broadcaster) {
		b.queueDepth = n
	}
}

// New constructs a Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[uuid.UUID]*Subscriber),
		logger:     slog.Default(),
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a global stream subscriber receiving every event.
func (b *Broadcaster) Subscribe() *Subscriber {
	return b.register("")
}

// JoinRoom registers a subscriber receiving only events published to the
// given room (plus every unscoped publish).
func (b *Broadcaster) JoinRoom(room string) *Subscriber {
	return b.register(room)
}

func (b *Broadcaster) register(room string) *Subscriber {
	sub := &Subscriber{
		id:   uuid.New(),
		room: room,
		ch:   make(chan Event, b.queueDepth),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once and with subscribers from a closed broadcaster.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers an event to every subscriber, regardless of room.
func (b *Broadcaster) Publish(event Event) {
	b.fanOut(event, func(*Subscriber) bool { return true })
}

// PublishRoom delivers an event to subscribers of the given room and to
// global stream subscribers.
func (b *Broadcaster) PublishRoom(room string, event Event) {
	b.fanOut(event, func(s *Subscriber) bool {
		return s.room == "" || s.room == room
	})
}

func (b *Broadcaster) fanOut(event Event, match func(*Subscriber) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.ch <- event:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			b.logger.Warn("subscriber queue full, dropping event",
				"subscriber_id", sub.id.String(),
				"event_type", event.Type,
			)
		}
	}
}

// SubscriberCount reports the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close tears down every subscription. Further publishes are no-ops and
// further subscriptions are returned already closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
