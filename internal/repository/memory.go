package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// MemoryAdapter is a process-local record store for offline use and tests.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]models.ReservationRecord
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: make(map[string]models.ReservationRecord)}
}

func (r *MemoryAdapter) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := schedule.DateKey(from), schedule.DateKey(to)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ReservationRecord
	for _, rec := range r.records {
		if rec.Date >= lo && rec.Date < hi {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *MemoryAdapter) Commit(ctx context.Context, rec models.ReservationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.records[rec.ID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryAdapter) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryAdapter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
