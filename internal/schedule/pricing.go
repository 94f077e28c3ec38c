package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Pricing is the two-tier tariff. Slots whose hour is below ThresholdHour are billed
// at DayRate, every later slot at EveningRate.
type Pricing struct {
	ThresholdHour int
	DayRate       decimal.Decimal
	EveningRate   decimal.Decimal
}

var DefaultPricing = Pricing{
	ThresholdHour: 16,
	DayRate:       decimal.NewFromInt(22000),
	EveningRate:   decimal.NewFromInt(30000),
}

// PriceFor returns the tier price of an anchor slot.
func (p Pricing) PriceFor(s Slot) (decimal.Decimal, error) {
	if !s.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidSlot, int(s))
	}
	if s.Hour() < p.ThresholdHour {
		return p.DayRate, nil
	}
	return p.EveningRate, nil
}

func (p Pricing) Validate() error {
	if p.ThresholdHour < 0 || p.ThresholdHour > 24 {
		return fmt.Errorf("pricing threshold hour out of range: %d", p.ThresholdHour)
	}
	if p.DayRate.IsNegative() || p.EveningRate.IsNegative() {
		return fmt.Errorf("pricing rates must not be negative")
	}
	return nil
}

// PriceForSlot prices s with DefaultPricing.
func PriceForSlot(s Slot) (decimal.Decimal, error) {
	return DefaultPricing.PriceFor(s)
}
