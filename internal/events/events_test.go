package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutear/gestor-turnos/internal/models"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int
	bus.Subscribe(EventReservationCreated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	r := models.Reservation{
		ID:         uuid.New(),
		Date:       time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		Anchor:     1320,
		ClientName: "Juan",
		Payment:    models.Deposit(),
		Price:      decimal.NewFromInt(30000),
	}
	require.NoError(t, bus.PublishJSON(EventReservationCreated, NewReservationPayload(r)))

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventReservationCreated, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded ReservationEventPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, r.ID.String(), decoded.ReservationID)
	assert.Equal(t, "2025-01-13", decoded.Date)
	assert.Equal(t, "22:00", decoded.Time)
	assert.Equal(t, "Seña", decoded.Payment)
}

func TestEventBusWildcardAndErrors(t *testing.T) {
	bus := NewEventBus()
	var specific, all int
	bus.Subscribe(EventReservationReleased, func(_ *Event) error { specific++; return nil })
	bus.Subscribe(AllEvents, func(_ *Event) error { all++; return errors.New("boom") })

	err := bus.Publish(&Event{Type: EventReservationReleased})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, specific)
	assert.Equal(t, 1, all)

	require.Error(t, bus.Publish(&Event{Type: EventReservationModified}))
	assert.Equal(t, 1, specific)
	assert.Equal(t, 2, all)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "nobody"}))
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventWeekLoaded, WeekLoadedPayload{}))
}

func TestPublishJSONMarshalError(t *testing.T) {
	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON("bad", make(chan int)))
}
