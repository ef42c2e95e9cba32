package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscription is a bounded stream of events from a Bus.
type Subscription struct {
	c    chan Event
	once sync.Once
}

// C returns the channel events are delivered on. It is closed by
// Bus.Unsubscribe and Bus.Close.
func (s *Subscription) C() <-chan Event {
	return s.c
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.c) })
}

// Bus is an Observer that copies every event to each subscriber's buffered
// channel. A subscriber whose buffer is full misses the event; the pool is
// never blocked by a slow consumer.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBus creates a new, empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger.With("component", "event_bus"),
	}
}

// Subscribe registers a subscriber with the given buffer size (minimum 1).
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{c: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.logger.Debug("registered subscriber", "subscriber_count", len(b.subs))
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// Observe implements Observer with a non-blocking send to every subscriber.
func (b *Bus) Observe(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.c <- event:
		default:
			n := b.dropped.Add(1)
			b.logger.Debug("subscriber buffer full, dropping event",
				"event_id", event.ID,
				"event_kind", event.Kind,
				"dropped_total", n)
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone. Later events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.close()
		delete(b.subs, sub)
	}
}
