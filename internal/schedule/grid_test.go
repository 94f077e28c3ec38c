package schedule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots(t *testing.T) {
	slots := Slots()
	require.Len(t, slots, 34)
	assert.Equal(t, Slot(420), slots[0])
	assert.Equal(t, Slot(1410), slots[len(slots)-1])
	for i := 1; i < len(slots); i++ {
		assert.Equal(t, SlotStep, int(slots[i]-slots[i-1]))
	}

	slots[0] = 0
	assert.Equal(t, Slot(420), Slots()[0], "Slots must return a copy")
}

func TestIndexOf(t *testing.T) {
	tests := []struct {
		name    string
		slot    Slot
		want    int
		wantErr bool
	}{
		{"first", 420, 0, false},
		{"last", 1410, 33, false},
		{"middle", 960, 18, false},
		{"before opening", 390, -1, true},
		{"after closing", 1440, -1, true},
		{"off step", 425, -1, true},
		{"negative", -30, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IndexOf(tt.slot)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSlot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpan(t *testing.T) {
	span, err := Span(1320, 4)
	require.NoError(t, err)
	assert.Equal(t, []Slot{1320, 1350, 1380, 1410}, span)

	_, err = Span(1350, 4)
	assert.ErrorIs(t, err, ErrInvalidSlot, "span must not run past the last slot")

	_, err = Span(421, 4)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = Span(420, 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	one, err := Span(1410, 1)
	require.NoError(t, err)
	assert.Equal(t, []Slot{1410}, one)
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "07:00", Slot(420).String())
	assert.Equal(t, "23:30", Slot(1410).String())
	assert.Equal(t, "Slot(-5)", Slot(-5).String())
}

func TestPriceForSlot(t *testing.T) {
	tests := []struct {
		slot Slot
		want int64
	}{
		{420, 22000},
		{930, 22000},  // 15:30
		{960, 30000},  // 16:00
		{990, 30000},  // 16:30
		{1410, 30000}, // 23:30
	}
	for _, tt := range tests {
		t.Run(tt.slot.String(), func(t *testing.T) {
			got, err := PriceForSlot(tt.slot)
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}

	_, err := PriceForSlot(1000)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestPricingValidate(t *testing.T) {
	assert.NoError(t, DefaultPricing.Validate())

	bad := DefaultPricing
	bad.DayRate = decimal.NewFromInt(-1)
	assert.Error(t, bad.Validate())

	bad = DefaultPricing
	bad.ThresholdHour = 25
	assert.Error(t, bad.Validate())
}
