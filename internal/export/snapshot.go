package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// SnapshotEntry is one occupied slot in the flat snapshot export. Every slot of a
// span repeats the reservation with its StartSlot.
type SnapshotEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"telefono"`
	Payment   string          `json:"pago"`
	Comment   string          `json:"comment"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt int64           `json:"createdAt"`
	StartSlot schedule.Slot   `json:"startSlot"`
}

// SnapshotKey is the flat key of an occupied slot: "<YYYY-MM-DD>_<minutes>".
func SnapshotKey(e booking.Occupancy) string {
	return fmt.Sprintf("%s_%d", schedule.DateKey(e.Date), int(e.Slot))
}

// Snapshot flattens occupancy entries into a map keyed by SnapshotKey.
func Snapshot(entries []booking.Occupancy) map[string]SnapshotEntry {
	out := make(map[string]SnapshotEntry, len(entries))
	for _, e := range entries {
		r := e.Reservation
		out[SnapshotKey(e)] = SnapshotEntry{
			ID:        r.ID.String(),
			Name:      r.ClientName,
			Phone:     r.Phone,
			Payment:   r.Payment.Label(),
			Comment:   r.Comment,
			Price:     r.Price,
			CreatedAt: r.CreatedAt.UnixMilli(),
			StartSlot: r.Anchor,
		}
	}
	return out
}

// SnapshotJSON renders Snapshot as JSON. Map keys come out sorted.
func SnapshotJSON(entries []booking.Occupancy) ([]byte, error) {
	return json.Marshal(Snapshot(entries))
}

// ParseSnapshot reads a flat snapshot back into one record per reservation. Entries
// that share a date and start slot collapse into a single record, preferring the
// anchor entry; a missing startSlot falls back to the slot in the key.
func ParseSnapshot(data []byte) ([]models.ReservationRecord, error) {
	var flat map[string]SnapshotEntry
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	byStart := make(map[string]models.ReservationRecord, len(flat))
	for key, e := range flat {
		date, minutes, ok := strings.Cut(key, "_")
		if !ok {
			return nil, fmt.Errorf("snapshot key %q: expected <date>_<minutes>", key)
		}
		m, err := strconv.Atoi(minutes)
		if err != nil {
			return nil, fmt.Errorf("snapshot key %q: %w", key, err)
		}
		start := e.StartSlot
		if start == 0 {
			start = schedule.Slot(m)
		}

		id := date + "_" + start.String()
		if _, seen := byStart[id]; seen && int(start) != m {
			continue
		}
		rec := models.ReservationRecord{
			ID:         e.ID,
			Date:       date,
			Time:       start.String(),
			ClientName: e.Name,
			Phone:      e.Phone,
			Payment:    e.Payment,
			Amount:     e.Price,
			Comment:    e.Comment,
		}
		if e.CreatedAt > 0 {
			rec.CreatedAt = time.UnixMilli(e.CreatedAt).UTC()
			rec.UpdatedAt = rec.CreatedAt
		}
		byStart[id] = rec
	}

	out := make([]models.ReservationRecord, 0, len(byStart))
	for _, rec := range byStart {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}
