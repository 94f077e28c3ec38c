package domain

import (
	"errors"

	"github.com/scoutear/gestor-turnos/internal/schedule"
)

var (
	// ErrInvalidSlot: time not on the grid, or a span that does not fit in the day.
	ErrInvalidSlot = schedule.ErrInvalidSlot
	// ErrSlotConflict: at least one slot of the requested span is already occupied.
	ErrSlotConflict = errors.New("slot conflict")
	// ErrNotFound: modify or release targeted a free slot.
	ErrNotFound = errors.New("reservation not found")
	// ErrSyncUnavailable: the sync adapter failed to load or commit.
	ErrSyncUnavailable = errors.New("sync unavailable")
	// ErrCorruptStore: an occupancy entry does not resolve to a consistent span.
	ErrCorruptStore = errors.New("reservation store is corrupt")
)
