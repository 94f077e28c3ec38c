package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// DefaultSpanSlots is how many consecutive grid slots one reservation holds.
const DefaultSpanSlots = 4

// Occupancy is a read-only view of one occupied (date, slot) pair.
type Occupancy struct {
	Date        time.Time
	Slot        schedule.Slot
	Seq         uint64
	Reservation models.Reservation
}

// LoadIssue describes a snapshot record that could not be loaded.
type LoadIssue struct {
	Record models.ReservationRecord
	Err    error
}

func (i LoadIssue) Error() string {
	return fmt.Sprintf("record %s %s (%s): %v", i.Record.Date, i.Record.Time, i.Record.ID, i.Err)
}

type slotKey struct {
	date string
	slot schedule.Slot
}

type entry struct {
	res models.Reservation
	seq uint64
}

// Store holds the occupancy of the court keyed by calendar date and slot.
// Every occupied key points at the reservation that owns it.
// Store is not safe for concurrent use; callers serialize access.
type Store struct {
	span    int
	pricing schedule.Pricing
	clock   domain.Clock
	loc     *time.Location

	occupancy map[slotKey]uuid.UUID
	records   map[uuid.UUID]*entry
	seq       uint64
}

type Option func(*Store)

func WithSpan(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.span = n
		}
	}
}

func WithPricing(p schedule.Pricing) Option {
	return func(s *Store) { s.pricing = p }
}

func WithClock(c domain.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocation sets the zone snapshot dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		span:      DefaultSpanSlots,
		pricing:   schedule.DefaultPricing,
		clock:     domain.SystemClock{},
		loc:       time.Local,
		occupancy: make(map[slotKey]uuid.UUID),
		records:   make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SpanSlots() int            { return s.span }
func (s *Store) Pricing() schedule.Pricing { return s.pricing }
func (s *Store) Location() *time.Location  { return s.loc }
func (s *Store) Len() int                  { return len(s.records) }

// Reserve books the span starting at anchor on date. Either every slot of the span
// is taken or nothing changes.
func (s *Store) Reserve(date time.Time, anchor schedule.Slot, d models.Details) (models.Reservation, error) {
	span, err := schedule.Span(anchor, s.span)
	if err != nil {
		return models.Reservation{}, err
	}
	price, err := s.pricing.PriceFor(anchor)
	if err != nil {
		return models.Reservation{}, err
	}

	now := s.clock.Now()
	r := models.Reservation{
		ID:         uuid.New(),
		Date:       schedule.Midnight(date),
		Anchor:     anchor,
		Slots:      span,
		ClientName: models.ClientNameOrPlaceholder(d.ClientName),
		Phone:      strings.TrimSpace(d.Phone),
		Payment:    d.Payment,
		Comment:    d.Comment,
		Price:      price,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.insert(r, 0); err != nil {
		return models.Reservation{}, err
	}
	return r.Clone(), nil
}

// Modify updates the descriptive fields of the reservation covering slot. Any slot of
// the span may be used; anchor, price and creation time never change.
func (s *Store) Modify(date time.Time, slot schedule.Slot, c models.Changes) (models.Reservation, error) {
	e, err := s.resolve(date, slot)
	if err != nil {
		return models.Reservation{}, err
	}
	if c.ClientName != nil {
		e.res.ClientName = models.ClientNameOrPlaceholder(*c.ClientName)
	}
	if c.Phone != nil {
		e.res.Phone = strings.TrimSpace(*c.Phone)
	}
	if c.Payment != nil {
		e.res.Payment = *c.Payment
	}
	if c.Comment != nil {
		e.res.Comment = *c.Comment
	}
	e.res.UpdatedAt = s.clock.Now()
	return e.res.Clone(), nil
}

// Release frees every slot of the reservation covering slot and returns it.
func (s *Store) Release(date time.Time, slot schedule.Slot) (models.Reservation, error) {
	r, _, err := s.Detach(date, slot)
	return r, err
}

// Detach is Release that also reports the reservation's insertion sequence, so a
// later Restore can put it back in the same place.
func (s *Store) Detach(date time.Time, slot schedule.Slot) (models.Reservation, uint64, error) {
	e, err := s.resolve(date, slot)
	if err != nil {
		return models.Reservation{}, 0, err
	}
	s.remove(e.res)
	return e.res.Clone(), e.seq, nil
}

// Lookup returns the reservation occupying (date, slot), if any.
func (s *Store) Lookup(date time.Time, slot schedule.Slot) (models.Reservation, bool) {
	id, ok := s.occupancy[slotKey{schedule.DateKey(date), slot}]
	if !ok {
		return models.Reservation{}, false
	}
	e, ok := s.records[id]
	if !ok {
		return models.Reservation{}, false
	}
	return e.res.Clone(), true
}

// Restore inserts a previously issued reservation verbatim. A non-zero seq keeps the
// insertion order it had before Detach; zero appends it as the newest entry.
func (s *Store) Restore(r models.Reservation, seq uint64) error {
	span, err := schedule.Span(r.Anchor, s.span)
	if err != nil {
		return err
	}
	r = r.Clone()
	r.Date = schedule.Midnight(r.Date)
	r.Slots = span
	return s.insert(r, seq)
}

// Revert puts back the descriptive fields of an earlier version of a reservation
// that is still held.
func (s *Store) Revert(prev models.Reservation) error {
	e, ok := s.records[prev.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, prev.ID)
	}
	e.res.ClientName = prev.ClientName
	e.res.Phone = prev.Phone
	e.res.Payment = prev.Payment
	e.res.Comment = prev.Comment
	e.res.UpdatedAt = prev.UpdatedAt
	return nil
}

// ReplaceRange drops every reservation dated in [from, to) and loads records in its
// place. Records that are malformed, out of range or overlapping an earlier record are
// skipped and reported.
func (s *Store) ReplaceRange(from, to time.Time, records []models.ReservationRecord) []LoadIssue {
	lo, hi := schedule.DateKey(from), schedule.DateKey(to)
	for _, e := range s.snapshot() {
		if dk := e.res.DateKey(); dk >= lo && dk < hi {
			s.remove(e.res)
		}
	}

	var issues []LoadIssue
	for _, rec := range records {
		r, err := s.fromRecord(rec)
		if err == nil {
			if dk := r.DateKey(); dk < lo || dk >= hi {
				err = fmt.Errorf("date outside %s..%s", lo, hi)
			}
		}
		if err == nil {
			err = s.insert(r, 0)
		}
		if err != nil {
			issues = append(issues, LoadIssue{Record: rec, Err: err})
		}
	}
	return issues
}

func (s *Store) fromRecord(rec models.ReservationRecord) (models.Reservation, error) {
	day, err := rec.Day(s.loc)
	if err != nil {
		return models.Reservation{}, err
	}
	anchor, err := rec.Anchor()
	if err != nil {
		return models.Reservation{}, err
	}
	span, err := schedule.Span(anchor, s.span)
	if err != nil {
		return models.Reservation{}, err
	}

	price := rec.Amount
	if price.IsZero() {
		if price, err = s.pricing.PriceFor(anchor); err != nil {
			return models.Reservation{}, err
		}
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	return models.Reservation{
		ID:         rec.ReservationID(),
		Date:       day,
		Anchor:     anchor,
		Slots:      span,
		ClientName: models.ClientNameOrPlaceholder(rec.ClientName),
		Phone:      rec.Phone,
		Payment:    models.ParsePayment(rec.Payment),
		Comment:    rec.Comment,
		Price:      price,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

// Occupancy lists every occupied entry dated in [from, to), ordered by date and slot.
func (s *Store) Occupancy(from, to time.Time) []Occupancy {
	lo, hi := schedule.DateKey(from), schedule.DateKey(to)
	var out []Occupancy
	for _, e := range s.records {
		if dk := e.res.DateKey(); dk < lo || dk >= hi {
			continue
		}
		for _, slot := range e.res.Slots {
			out = append(out, Occupancy{
				Date:        e.res.Date,
				Slot:        slot,
				Seq:         e.seq,
				Reservation: e.res.Clone(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := schedule.DateKey(out[i].Date), schedule.DateKey(out[j].Date)
		if di != dj {
			return di < dj
		}
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Reservations lists the reservations dated in [from, to), ordered by date and anchor.
func (s *Store) Reservations(from, to time.Time) []models.Reservation {
	lo, hi := schedule.DateKey(from), schedule.DateKey(to)
	var out []models.Reservation
	for _, e := range s.snapshot() {
		if dk := e.res.DateKey(); dk >= lo && dk < hi {
			out = append(out, e.res.Clone())
		}
	}
	return out
}

// Verify checks that every occupied key resolves to a reservation covering it and
// that every reservation holds exactly its span.
func (s *Store) Verify() error {
	for key, id := range s.occupancy {
		e, ok := s.records[id]
		if !ok {
			return fmt.Errorf("%w: %s %s points to missing %s", domain.ErrCorruptStore, key.date, key.slot, id)
		}
		if e.res.DateKey() != key.date || !e.res.Covers(key.slot) {
			return fmt.Errorf("%w: %s %s is not covered by %s", domain.ErrCorruptStore, key.date, key.slot, id)
		}
	}
	held := 0
	for id, e := range s.records {
		span, err := schedule.Span(e.res.Anchor, s.span)
		if err != nil || len(span) != len(e.res.Slots) {
			return fmt.Errorf("%w: %s has a malformed span", domain.ErrCorruptStore, id)
		}
		for i, slot := range span {
			if e.res.Slots[i] != slot || s.occupancy[slotKey{e.res.DateKey(), slot}] != id {
				return fmt.Errorf("%w: %s does not own %s", domain.ErrCorruptStore, id, slot)
			}
		}
		held += len(span)
	}
	if held != len(s.occupancy) {
		return fmt.Errorf("%w: %d entries for %d span slots", domain.ErrCorruptStore, len(s.occupancy), held)
	}
	return nil
}

func (s *Store) resolve(date time.Time, slot schedule.Slot) (*entry, error) {
	if _, err := schedule.IndexOf(slot); err != nil {
		return nil, err
	}
	dk := schedule.DateKey(date)
	id, ok := s.occupancy[slotKey{dk, slot}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s is free", domain.ErrNotFound, dk, slot)
	}
	e, ok := s.records[id]
	if !ok || !e.res.Covers(slot) {
		return nil, fmt.Errorf("%w: %s %s points to %s", domain.ErrCorruptStore, dk, slot, id)
	}
	return e, nil
}

func (s *Store) insert(r models.Reservation, seq uint64) error {
	dk := r.DateKey()
	if _, dup := s.records[r.ID]; dup {
		return fmt.Errorf("%w: reservation %s already held", domain.ErrSlotConflict, r.ID)
	}
	for _, slot := range r.Slots {
		if _, taken := s.occupancy[slotKey{dk, slot}]; taken {
			return fmt.Errorf("%w: %s %s", domain.ErrSlotConflict, dk, slot)
		}
	}

	if seq == 0 {
		s.seq++
		seq = s.seq
	}
	s.records[r.ID] = &entry{res: r.Clone(), seq: seq}
	for _, slot := range r.Slots {
		s.occupancy[slotKey{dk, slot}] = r.ID
	}
	return nil
}

func (s *Store) remove(r models.Reservation) {
	dk := r.DateKey()
	for _, slot := range r.Slots {
		if s.occupancy[slotKey{dk, slot}] == r.ID {
			delete(s.occupancy, slotKey{dk, slot})
		}
	}
	delete(s.records, r.ID)
}

// snapshot returns the entries ordered by date, anchor and insertion.
func (s *Store) snapshot() []*entry {
	out := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].res.DateKey(), out[j].res.DateKey()
		if di != dj {
			return di < dj
		}
		if out[i].res.Anchor != out[j].res.Anchor {
			return out[i].res.Anchor < out[j].res.Anchor
		}
		return out[i].seq < out[j].seq
	})
	return out
}
