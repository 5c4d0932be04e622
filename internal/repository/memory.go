package repository

import (
	"context"
	"sync"

	"fixhub/internal/events"
)

const subscriberBuffer = 64

// MemoryHub is an in-process fan-out transport. It backs tests and serves
// as the failover fallback when Redis is unreachable.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[string][]chan events.BookingStatusChanged
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[string][]chan events.BookingStatusChanged),
	}
}

// Subscribe returns a channel receiving every event published to the topic.
// Slow subscribers that fill their buffer lose events; delivery is
// best-effort, matching the transport contract.
func (h *MemoryHub) Subscribe(topic string) <-chan events.BookingStatusChanged {
	ch := make(chan events.BookingStatusChanged, subscriberBuffer)
	h.mu.Lock()
	h.subs[topic] = append(h.subs[topic], ch)
	h.mu.Unlock()
	return ch
}

func (h *MemoryHub) Publish(ctx context.Context, topic string, event events.BookingStatusChanged) error {
	h.mu.RLock()
	subs := append([]chan events.BookingStatusChanged(nil), h.subs[topic]...)
	h.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}
