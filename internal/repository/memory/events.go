package memory

import (
	"context"
	"sync"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

var _ network.EventPublisher = (*EventBus)(nil)

// EventBus fans events out to in-process subscribers. Slow subscribers miss
// events instead of blocking publishers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan domain.Event
	nextID      int
	bufferSize  int
}

// NewEventBus creates an event bus whose subscriber channels hold bufferSize events.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventBus{
		subscribers: make(map[int]chan domain.Event),
		bufferSize:  bufferSize,
	}
}

// PublishEvent delivers event to every subscriber.
func (b *EventBus) PublishEvent(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of events and a function that ends the subscription.
func (b *EventBus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, b.bufferSize)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
}
