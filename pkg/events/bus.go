package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/weaveai/weaveai/pkg/models"
)

// DefaultBusBuffer is the per-subscriber channel capacity. Chunk events are
// high-frequency; the buffer absorbs bursts while a consumer flushes.
const DefaultBusBuffer = 256

// Bus is the in-process event fan-out. Publishing never blocks: a
// subscriber that cannot keep up loses events, counted in Dropped. Durable
// delivery is the events table's job, not the bus's.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]*Subscription
	nextID int64
	buffer int
	closed bool

	dropped atomic.Int64
}

// Subscription is one subscriber's feed for a single channel. Receive from
// C until it is closed; call Close when done.
type Subscription struct {
	C chan models.Event

	channel string
	id      int64
	bus     *Bus
	once    sync.Once
}

// NewBus creates a bus with the given per-subscriber buffer.
// buffer <= 0 uses DefaultBusBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}
	return &Bus{
		subs:   make(map[string]map[int64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a feed for the channel. Events published after
// Subscribe returns are delivered (or counted as dropped); earlier events
// are reachable only through catchup.
func (b *Bus) Subscribe(channel string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		C:       make(chan models.Event, b.buffer),
		channel: channel,
		id:      b.nextID,
		bus:     b,
	}

	if b.closed {
		// A subscription on a closed bus delivers nothing.
		close(sub.C)
		return sub
	}

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int64]*Subscription)
	}
	b.subs[channel][sub.id] = sub
	return sub
}

// Close removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if subs, ok := s.bus.subs[s.channel]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.subs, s.channel)
			}
			close(s.C)
		}
		// If the channel set is gone the bus already closed s.C
		// during shutdown.
	})
}

// Publish delivers the event to every subscriber of the channel without
// blocking. Sends happen under the read lock so a concurrent Close cannot
// close a channel mid-send.
func (b *Bus) Publish(channel string, event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[channel] {
		select {
		case sub.C <- event:
		default:
			if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("Event bus subscriber falling behind, dropping events",
					"channel", channel, "type", event.Type, "total_dropped", n)
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions for a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down: all subscriptions are closed, later publishes
// are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for channel, subs := range b.subs {
		for _, sub := range subs {
			close(sub.C)
		}
		delete(b.subs, channel)
	}
}
