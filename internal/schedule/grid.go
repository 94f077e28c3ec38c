package schedule

import "fmt"

// Slot is a start time expressed in minutes since local midnight.
type Slot int

const (
	FirstSlot Slot = 7 * 60
	LastSlot  Slot = 23*60 + 30
	SlotStep       = 30

	// SlotsPerDay is the number of bookable starts between FirstSlot and LastSlot.
	SlotsPerDay = int(LastSlot-FirstSlot)/SlotStep + 1
)

var grid = buildGrid()

func buildGrid() []Slot {
	slots := make([]Slot, 0, SlotsPerDay)
	for m := FirstSlot; m <= LastSlot; m += SlotStep {
		slots = append(slots, m)
	}
	return slots
}

// Slots returns the ordered day grid. The returned slice is a copy.
func Slots() []Slot {
	out := make([]Slot, len(grid))
	copy(out, grid)
	return out
}

// IndexOf returns the position of s in the day grid.
func IndexOf(s Slot) (int, error) {
	if s < FirstSlot || s > LastSlot || int(s-FirstSlot)%SlotStep != 0 {
		return -1, fmt.Errorf("%w: %d", ErrInvalidSlot, int(s))
	}
	return int(s-FirstSlot) / SlotStep, nil
}

// At returns the slot stored at grid index i.
func At(i int) (Slot, bool) {
	if i < 0 || i >= len(grid) {
		return 0, false
	}
	return grid[i], true
}

// Valid reports whether s is a member of the grid.
func (s Slot) Valid() bool {
	_, err := IndexOf(s)
	return err == nil
}

// Hour is the hour component of the slot start.
func (s Slot) Hour() int {
	return int(s) / 60
}

func (s Slot) String() string {
	clock, err := MinutesToClock(int(s))
	if err != nil {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return clock
}

// Span returns the n contiguous grid slots starting at anchor. The walk is done on
// grid indices so the result never depends on minute arithmetic.
func Span(anchor Slot, n int) ([]Slot, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: span length %d", ErrInvalidSlot, n)
	}
	start, err := IndexOf(anchor)
	if err != nil {
		return nil, err
	}
	if start+n > len(grid) {
		return nil, fmt.Errorf("%w: span of %d from %s runs past %s",
			ErrInvalidSlot, n, anchor, LastSlot)
	}
	out := make([]Slot, n)
	copy(out, grid[start:start+n])
	return out, nil
}
