package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/scoutear/gestor-turnos/internal/aggregate"
	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/events"
	"github.com/scoutear/gestor-turnos/internal/metrics"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// ReservationService is the single writer in front of the store. Every mutation is
// committed to the adapter while the lock is held and undone locally if the commit
// fails, so the store never holds state the adapter rejected.
type ReservationService struct {
	mu       sync.Mutex
	store    *booking.Store
	agg      *aggregate.Aggregator
	adapter  domain.SyncAdapter
	eventBus domain.EventPublisher
	mirror   domain.SyncWorker
	logger   *zerolog.Logger

	// loaded holds the start dates of weeks whose adapter snapshot is in the store.
	loaded map[string]struct{}
}

// SlotView is one row of a day grid.
type SlotView struct {
	Slot        schedule.Slot       `json:"slot"`
	Time        string              `json:"time"`
	Price       decimal.Decimal     `json:"price"`
	Anchor      bool                `json:"anchor"`
	Reservation *models.Reservation `json:"reservation,omitempty"`
}

// LoadResult summarizes one snapshot load. Migrated counts stored rows rewritten
// under the ID the store derived for them.
type LoadResult struct {
	From     time.Time
	To       time.Time
	Loaded   int
	Skipped  int
	Migrated int
	Issues   []booking.LoadIssue
}

// NewReservationService wires the store to its adapter. eventBus and mirror may be nil.
func NewReservationService(store *booking.Store, adapter domain.SyncAdapter, eventBus domain.EventPublisher, mirror domain.SyncWorker, logger *zerolog.Logger) *ReservationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReservationService{
		store:    store,
		agg:      aggregate.New(store),
		adapter:  adapter,
		eventBus: eventBus,
		mirror:   mirror,
		logger:   logger,
		loaded:   make(map[string]struct{}),
	}
}

func (s *ReservationService) Location() *time.Location  { return s.store.Location() }
func (s *ReservationService) SpanSlots() int            { return s.store.SpanSlots() }
func (s *ReservationService) Pricing() schedule.Pricing { return s.store.Pricing() }

func (s *ReservationService) Reserve(ctx context.Context, date time.Time, anchor schedule.Slot, d models.Details) (models.Reservation, error) {
	r, err := s.reserve(ctx, date, anchor, d)
	s.observe("reserve", err)
	if err != nil {
		return models.Reservation{}, err
	}
	s.afterWrite(ctx, events.EventReservationCreated, models.SyncTaskUpsert, r)
	return r, nil
}

func (s *ReservationService) reserve(ctx context.Context, date time.Time, anchor schedule.Slot, d models.Details) (models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := schedule.Span(anchor, s.store.SpanSlots()); err != nil {
		return models.Reservation{}, err
	}
	if err := s.ensureLoaded(ctx, date); err != nil {
		return models.Reservation{}, err
	}
	r, err := s.store.Reserve(date, anchor, d)
	if err != nil {
		return models.Reservation{}, err
	}
	if err := s.adapter.Commit(ctx, models.RecordFromReservation(r)); err != nil {
		if _, rerr := s.store.Release(date, anchor); rerr != nil {
			s.logger.Error().Err(rerr).Str("reservation_id", r.ID.String()).Msg("rollback of reserve failed")
		}
		return models.Reservation{}, syncError(err)
	}
	metrics.SetHeld(s.store.Len())
	return r, nil
}

// Modify changes descriptive fields of the reservation covering slot. An empty change
// set returns the current reservation without touching the adapter.
func (s *ReservationService) Modify(ctx context.Context, date time.Time, slot schedule.Slot, c models.Changes) (models.Reservation, error) {
	r, changed, err := s.modify(ctx, date, slot, c)
	s.observe("modify", err)
	if err != nil {
		return models.Reservation{}, err
	}
	if changed {
		s.afterWrite(ctx, events.EventReservationModified, models.SyncTaskUpsert, r)
	}
	return r, nil
}

func (s *ReservationService) modify(ctx context.Context, date time.Time, slot schedule.Slot, c models.Changes) (models.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := schedule.IndexOf(slot); err != nil {
		return models.Reservation{}, false, err
	}
	if err := s.ensureLoaded(ctx, date); err != nil {
		return models.Reservation{}, false, err
	}
	prev, err := s.lookup(date, slot)
	if err != nil {
		return models.Reservation{}, false, err
	}
	if c.Empty() {
		return prev, false, nil
	}

	r, err := s.store.Modify(date, slot, c)
	if err != nil {
		return models.Reservation{}, false, err
	}
	if err := s.adapter.Commit(ctx, models.RecordFromReservation(r)); err != nil {
		if rerr := s.store.Revert(prev); rerr != nil {
			s.logger.Error().Err(rerr).Str("reservation_id", r.ID.String()).Msg("rollback of modify failed")
		}
		return models.Reservation{}, false, syncError(err)
	}
	return r, true, nil
}

// Release frees the reservation covering slot and returns it.
func (s *ReservationService) Release(ctx context.Context, date time.Time, slot schedule.Slot) (models.Reservation, error) {
	r, err := s.release(ctx, date, slot)
	s.observe("release", err)
	if err != nil {
		return models.Reservation{}, err
	}
	s.afterWrite(ctx, events.EventReservationReleased, models.SyncTaskDelete, r)
	return r, nil
}

func (s *ReservationService) release(ctx context.Context, date time.Time, slot schedule.Slot) (models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := schedule.IndexOf(slot); err != nil {
		return models.Reservation{}, err
	}
	if err := s.ensureLoaded(ctx, date); err != nil {
		return models.Reservation{}, err
	}
	r, seq, err := s.store.Detach(date, slot)
	if err != nil {
		return models.Reservation{}, err
	}
	if err := s.adapter.Delete(ctx, r.ID.String()); err != nil {
		if rerr := s.store.Restore(r, seq); rerr != nil {
			s.logger.Error().Err(rerr).Str("reservation_id", r.ID.String()).Msg("rollback of release failed")
		}
		return models.Reservation{}, syncError(err)
	}
	metrics.SetHeld(s.store.Len())
	return r, nil
}

// Lookup returns the reservation covering (date, slot).
func (s *ReservationService) Lookup(date time.Time, slot schedule.Slot) (models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(date, slot)
}

func (s *ReservationService) lookup(date time.Time, slot schedule.Slot) (models.Reservation, error) {
	if _, err := schedule.IndexOf(slot); err != nil {
		return models.Reservation{}, err
	}
	r, ok := s.store.Lookup(date, slot)
	if !ok {
		return models.Reservation{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, schedule.DateKey(date), slot)
	}
	return r, nil
}

// Day lists every grid slot of date with its price and occupant.
func (s *ReservationService) Day(date time.Time) []SlotView {
	s.mu.Lock()
	defer s.mu.Unlock()

	pricing := s.store.Pricing()
	slots := schedule.Slots()
	out := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		price, _ := pricing.PriceFor(slot)
		v := SlotView{Slot: slot, Time: slot.String(), Price: price}
		if r, ok := s.store.Lookup(date, slot); ok {
			v.Reservation = &r
			v.Anchor = r.Anchor == slot
		}
		out = append(out, v)
	}
	return out
}

func (s *ReservationService) WeeklyStats(weekStart time.Time) aggregate.WeekStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.WeeklyStats(weekStart)
}

func (s *ReservationService) Upcoming(weekStart time.Time, limit int) []aggregate.UpcomingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Upcoming(weekStart, limit)
}

// Snapshot returns the occupancy entries dated in [from, to).
func (s *ReservationService) Snapshot(from, to time.Time) []booking.Occupancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Occupancy(from, to)
}

func (s *ReservationService) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Verify()
}

// LoadWeek replaces the week containing day with the adapter's snapshot.
func (s *ReservationService) LoadWeek(ctx context.Context, day time.Time) (LoadResult, error) {
	from := schedule.StartOfWeek(day.In(s.store.Location()))
	return s.LoadRange(ctx, from, schedule.AddDays(from, schedule.DaysInWeek))
}

// LoadRange replaces [from, to) with the adapter's snapshot. If the adapter fails the
// store is left as it was.
func (s *ReservationService) LoadRange(ctx context.Context, from, to time.Time) (LoadResult, error) {
	res, err := s.loadRange(ctx, from, to)
	s.observe("load", err)
	if err != nil {
		return res, err
	}
	s.report(res)

	s.publish(events.EventWeekLoaded, events.WeekLoadedPayload{
		WeekStart: schedule.DateKey(from),
		Loaded:    res.Loaded,
		Skipped:   res.Skipped,
	})
	return res, nil
}

func (s *ReservationService) loadRange(ctx context.Context, from, to time.Time) (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRangeLocked(ctx, from, to)
}

func (s *ReservationService) loadRangeLocked(ctx context.Context, from, to time.Time) (LoadResult, error) {
	res := LoadResult{From: from, To: to}
	records, err := s.adapter.LoadSnapshot(ctx, from, to)
	if err != nil {
		return res, syncError(err)
	}
	res.Issues = s.store.ReplaceRange(from, to, records)
	res.Skipped = len(res.Issues)
	res.Loaded = len(records) - res.Skipped
	res.Migrated = s.migrateIDs(ctx, records)
	s.markLoaded(from, to)
	metrics.SetHeld(s.store.Len())
	return res, nil
}

// ensureLoaded pulls the week containing date from the adapter unless it is already
// in the store. Writes against a week the store has never seen would be checked
// against an empty grid.
func (s *ReservationService) ensureLoaded(ctx context.Context, date time.Time) error {
	from := s.weekOf(date)
	if _, ok := s.loaded[schedule.DateKey(from)]; ok {
		return nil
	}
	res, err := s.loadRangeLocked(ctx, from, schedule.AddDays(from, schedule.DaysInWeek))
	s.observe("load", err)
	if err != nil {
		return err
	}
	s.report(res)
	return nil
}

// weekOf returns the Monday of date's calendar week in the store's zone.
func (s *ReservationService) weekOf(date time.Time) time.Time {
	y, m, d := date.Date()
	return schedule.StartOfWeek(time.Date(y, m, d, 0, 0, 0, 0, s.store.Location()))
}

// markLoaded records every whole week inside [from, to).
func (s *ReservationService) markLoaded(from, to time.Time) {
	week := s.weekOf(from)
	if schedule.DateKey(week) < schedule.DateKey(from) {
		week = schedule.AddDays(week, schedule.DaysInWeek)
	}
	for {
		end := schedule.AddDays(week, schedule.DaysInWeek)
		if schedule.DateKey(end) > schedule.DateKey(to) {
			return
		}
		s.loaded[schedule.DateKey(week)] = struct{}{}
		week = end
	}
}

// migrateIDs rewrites loaded rows that had no usable ID under the one the store
// derived for them and drops the original row, so later commits and deletes hit it.
func (s *ReservationService) migrateIDs(ctx context.Context, records []models.ReservationRecord) int {
	migrated := 0
	for _, rec := range records {
		id := rec.ReservationID()
		if rec.ID == id.String() {
			continue
		}
		day, err := rec.Day(s.store.Location())
		if err != nil {
			continue
		}
		anchor, err := rec.Anchor()
		if err != nil {
			continue
		}
		held, ok := s.store.Lookup(day, anchor)
		if !ok || held.ID != id {
			continue
		}

		log := s.logger.With().Str("stored_id", rec.ID).Str("reservation_id", id.String()).Logger()
		if err := s.adapter.Commit(ctx, models.RecordFromReservation(held)); err != nil {
			log.Warn().Err(err).Msg("could not rewrite stored reservation id")
			continue
		}
		if err := s.adapter.Delete(ctx, rec.ID); err != nil {
			log.Warn().Err(err).Msg("could not drop reservation row with legacy id")
			continue
		}
		migrated++
	}
	return migrated
}

func (s *ReservationService) report(res LoadResult) {
	for _, issue := range res.Issues {
		s.logger.Warn().
			Str("date", issue.Record.Date).
			Str("time", issue.Record.Time).
			Str("reservation_id", issue.Record.ID).
			Err(issue.Err).
			Msg("skipped stored reservation")
	}
	s.logger.Info().
		Str("from", schedule.DateKey(res.From)).
		Str("to", schedule.DateKey(res.To)).
		Int("loaded", res.Loaded).
		Int("skipped", res.Skipped).
		Int("migrated", res.Migrated).
		Msg("reservations loaded")
}

func (s *ReservationService) afterWrite(ctx context.Context, eventType, taskType string, r models.Reservation) {
	s.publish(eventType, events.NewReservationPayload(r))

	if s.mirror == nil {
		return
	}
	if err := s.mirror.EnqueueTask(ctx, taskType, models.RecordFromReservation(r)); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID.String()).Msg("failed to enqueue mirror task")
	}
}

func (s *ReservationService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}

func (s *ReservationService) observe(op string, err error) {
	metrics.ObserveOperation(op, Outcome(err))
}

// Outcome classifies err into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidSlot):
		return "invalid"
	case errors.Is(err, domain.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSyncUnavailable):
		return "sync_unavailable"
	default:
		return "error"
	}
}

func syncError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrSyncUnavailable, err)
}
