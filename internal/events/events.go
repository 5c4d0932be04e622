package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fixhub/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventReviewAttached       = "review_attached"
)

// Topic names for the fan-out transport. Per-user topics address the
// booking's customer and assigned technician; the role topic is the
// broadcast channel used when a booking opens for bidding.
const TopicTechnicians = "role:technicians"

func UserTopic(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// BookingStatusChanged is emitted once per successful transition. Seq is
// assigned in the same transaction as the status change and is strictly
// increasing per booking, so subscribers can detect gaps and reordering.
type BookingStatusChanged struct {
	EventID        string           `json:"event_id"`
	BookingID      int64            `json:"booking_id"`
	PreviousStatus models.Status    `json:"previous_status"`
	NewStatus      models.Status    `json:"new_status"`
	ActorRole      models.ActorRole `json:"actor_role"`
	Note           string           `json:"note,omitempty"`
	Forced         bool             `json:"forced,omitempty"`
	Seq            int64            `json:"seq"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. It is independent from
// the external fan-out transport; local consumers (admin notifier, metrics)
// subscribe here.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
