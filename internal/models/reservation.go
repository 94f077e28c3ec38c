package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// PlaceholderName is stored when a reservation is taken without a client name.
const PlaceholderName = "Anónimo"

// Reservation is one booking of a contiguous span of slots on a single date.
type Reservation struct {
	ID         uuid.UUID       `json:"id"`
	Date       time.Time       `json:"date"`
	Anchor     schedule.Slot   `json:"anchor"`
	Slots      []schedule.Slot `json:"slots"`
	ClientName string          `json:"client_name"`
	Phone      string          `json:"phone"`
	Payment    PaymentStatus   `json:"payment"`
	Comment    string          `json:"comment"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (r Reservation) DateKey() string {
	return schedule.DateKey(r.Date)
}

// Covers reports whether slot is one of the reservation's span entries.
func (r Reservation) Covers(slot schedule.Slot) bool {
	for _, s := range r.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the span slice.
func (r Reservation) Clone() Reservation {
	out := r
	out.Slots = append([]schedule.Slot(nil), r.Slots...)
	return out
}

// Details are the client supplied fields of a new reservation.
type Details struct {
	ClientName string        `json:"client_name"`
	Phone      string        `json:"phone"`
	Payment    PaymentStatus `json:"payment"`
	Comment    string        `json:"comment"`
}

// Changes carries a partial update. Nil fields are left untouched.
type Changes struct {
	ClientName *string        `json:"client_name,omitempty"`
	Phone      *string        `json:"phone,omitempty"`
	Payment    *PaymentStatus `json:"payment,omitempty"`
	Comment    *string        `json:"comment,omitempty"`
}

func (c Changes) Empty() bool {
	return c.ClientName == nil && c.Phone == nil && c.Payment == nil && c.Comment == nil
}

// ClientNameOrPlaceholder normalizes an optional client name.
func ClientNameOrPlaceholder(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return PlaceholderName
	}
	return name
}
