package events

import (
	"sync"

	"go.uber.org/zap"
)

// Bus fans events out to live subscribers (the websocket hub, mostly).
// Slow subscribers drop events rather than block the trading loop; the
// durable record lives in the sink, not here.
type Bus struct {
	mu     sync.RWMutex
	logger *zap.Logger
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewBus(logger *zap.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a listener. Call the returned cancel func to
// unsubscribe; the channel closes after that.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping it for any
// whose buffer is full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("type", string(ev.Type)),
			)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
