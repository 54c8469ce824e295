package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationUpdated   = "reservation_updated"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationDeleted   = "reservation_deleted"
	EventSweepCompleted       = "sweep_completed"
)

// ReservationEventPayload is the reservation snapshot given to subscribers.
type ReservationEventPayload struct {
	ReservationID string    `json:"reservation_id"`
	SpaceID       string    `json:"space_id"`
	PlaceID       string    `json:"place_id"`
	ClientEmail   string    `json:"client_email"`
	Date          time.Time `json:"date"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
}

// SweepEventPayload reports a completion sweep run.
type SweepEventPayload struct {
	Completed int64     `json:"completed"`
	SweptAt   time.Time `json:"swept_at"`
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for domain events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously;
// the caller decides the concurrency model.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
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
