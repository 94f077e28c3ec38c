package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scoutear/gestor-turnos/internal/models"
)

const (
	EventReservationCreated  = "reservation_created"
	EventReservationModified = "reservation_modified"
	EventReservationReleased = "reservation_released"
	EventWeekLoaded          = "week_loaded"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// ReservationEventPayload is the reservation snapshot handed to subscribers.
type ReservationEventPayload struct {
	ReservationID string          `json:"reservation_id"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	ClientName    string          `json:"client_name"`
	Payment       string          `json:"payment"`
	Price         decimal.Decimal `json:"price"`
	Comment       string          `json:"comment,omitempty"`
}

func NewReservationPayload(r models.Reservation) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID.String(),
		Date:          r.DateKey(),
		Time:          r.Anchor.String(),
		ClientName:    r.ClientName,
		Payment:       r.Payment.Label(),
		Price:         r.Price,
		Comment:       r.Comment,
	}
}

type WeekLoadedPayload struct {
	WeekStart string `json:"week_start"`
	Loaded    int    `json:"loaded"`
	Skipped   int    `json:"skipped"`
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously on the publisher's
// goroutine.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to its subscribers and to AllEvents subscribers.
// Handler errors are collected and returned together.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
