package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// EventBus is an in-process app.EventPublisher. Subscribers get every pass event
// published after they subscribe; a full subscriber buffer drops the event for
// that subscriber only.
type EventBus struct {
	mu          sync.RWMutex
	published   []domain.PassEvent
	subscribers map[chan domain.PassEvent]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[chan domain.PassEvent]struct{})}
}

func (b *EventBus) PublishPass(_ context.Context, event domain.PassEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a buffered event channel and its cancel function.
func (b *EventBus) Subscribe() (<-chan domain.PassEvent, func()) {
	ch := make(chan domain.PassEvent, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// Published returns a copy of every event seen so far.
func (b *EventBus) Published() []domain.PassEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.PassEvent, len(b.published))
	copy(out, b.published)
	return out
}
