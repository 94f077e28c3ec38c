package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/events"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/repository"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var (
	monday = time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)
)

type mockAdapter struct {
	mock.Mock
}

func (m *mockAdapter) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReservationRecord), args.Error(1)
}

func (m *mockAdapter) Commit(ctx context.Context, record models.ReservationRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockAdapter) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, record models.ReservationRecord) error {
	return m.Called(ctx, taskType, record).Error(0)
}

// eventLog records every event published on the bus.
type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) handle(e *events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
	return nil
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func newTestService(t *testing.T) (*ReservationService, *mockAdapter, *mockWorker, *eventLog) {
	t.Helper()
	adapter := new(mockAdapter)
	worker := new(mockWorker)
	log := &eventLog{}
	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, log.handle)

	logger := zerolog.New(io.Discard)
	store := booking.NewStore(booking.WithClock(fixedClock{now}), booking.WithLocation(time.UTC))
	svc := NewReservationService(store, adapter, bus, worker, &logger)
	return svc, adapter, worker, log
}

// emptyWeek lets the first write into weekStart's week load an empty snapshot.
func emptyWeek(adapter *mockAdapter, weekStart time.Time) {
	adapter.On("LoadSnapshot", mock.Anything, weekStart, schedule.AddDays(weekStart, schedule.DaysInWeek)).
		Return(nil, nil).Once()
}

func newMemoryService(t *testing.T) (*ReservationService, *repository.MemoryAdapter) {
	t.Helper()
	adapter := repository.NewMemoryAdapter()
	logger := zerolog.New(io.Discard)
	store := booking.NewStore(booking.WithClock(fixedClock{now}), booking.WithLocation(time.UTC))
	return NewReservationService(store, adapter, nil, nil, &logger), adapter
}

func TestReserveCommitsAndPublishes(t *testing.T) {
	svc, adapter, worker, log := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.MatchedBy(func(rec models.ReservationRecord) bool {
		return rec.Date == "2025-01-13" && rec.Time == "18:00" && rec.Payment == models.LabelDeposit
	})).Return(nil).Once()
	worker.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.Anything).Return(nil).Once()

	r, err := svc.Reserve(ctx, monday, 1080, models.Details{ClientName: "Sofía", Payment: models.Deposit()})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Slot{1080, 1110, 1140, 1170}, r.Slots)
	assert.True(t, decimal.NewFromInt(30000).Equal(r.Price))

	got, err := svc.Lookup(monday, 1140)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	assert.Equal(t, []string{events.EventReservationCreated}, log.all())
	adapter.AssertExpectations(t)
	worker.AssertExpectations(t)
}

func TestReserveRollsBackWhenCommitFails(t *testing.T) {
	svc, adapter, worker, log := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(errors.New("sheet unreachable")).Once()

	_, err := svc.Reserve(ctx, monday, 600, models.Details{ClientName: "Pablo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)
	assert.Contains(t, err.Error(), "sheet unreachable")

	_, err = svc.Lookup(monday, 600)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, svc.Verify())
	assert.Empty(t, log.all())
	worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveConflictSkipsAdapter(t *testing.T) {
	svc, adapter, worker, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	worker.On("EnqueueTask", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Reserve(ctx, monday, 600, models.Details{})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, monday, 630, models.Details{})
	assert.ErrorIs(t, err, domain.ErrSlotConflict)

	_, err = svc.Reserve(ctx, monday, 1395, models.Details{})
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)

	adapter.AssertNumberOfCalls(t, "Commit", 1)
}

func TestModify(t *testing.T) {
	svc, adapter, worker, log := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Twice()
	worker.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.Anything).Return(nil).Twice()

	r, err := svc.Reserve(ctx, monday, 900, models.Details{ClientName: "Lara"})
	require.NoError(t, err)

	paid := models.Paid()
	updated, err := svc.Modify(ctx, monday, 960, models.Changes{Payment: &paid})
	require.NoError(t, err)
	assert.Equal(t, r.ID, updated.ID)
	assert.Equal(t, models.PaymentPaid, updated.Payment.Kind())
	assert.Equal(t, "Lara", updated.ClientName)

	// empty change set is not committed
	same, err := svc.Modify(ctx, monday, 900, models.Changes{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, same.Payment.Kind())

	assert.Equal(t, []string{events.EventReservationCreated, events.EventReservationModified}, log.all())
	adapter.AssertExpectations(t)
}

func TestModifyRollsBackWhenCommitFails(t *testing.T) {
	svc, adapter, worker, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	worker.On("EnqueueTask", ctx, mock.Anything, mock.Anything).Return(nil)
	_, err := svc.Reserve(ctx, monday, 900, models.Details{ClientName: "Lara"})
	require.NoError(t, err)

	adapter.On("Commit", ctx, mock.Anything).Return(errors.New("timeout")).Once()
	name := "Otra"
	_, err = svc.Modify(ctx, monday, 900, models.Changes{ClientName: &name})
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	got, err := svc.Lookup(monday, 900)
	require.NoError(t, err)
	assert.Equal(t, "Lara", got.ClientName)
}

func TestModifyMissing(t *testing.T) {
	svc, adapter, _, _ := newTestService(t)
	emptyWeek(adapter, monday)
	name := "x"

	_, err := svc.Modify(context.Background(), monday, 900, models.Changes{ClientName: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Modify(context.Background(), monday, 905, models.Changes{ClientName: &name})
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestRelease(t *testing.T) {
	svc, adapter, worker, log := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	worker.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.Anything).Return(nil).Once()
	r, err := svc.Reserve(ctx, monday, 1200, models.Details{})
	require.NoError(t, err)

	adapter.On("Delete", ctx, r.ID.String()).Return(nil).Once()
	worker.On("EnqueueTask", ctx, models.SyncTaskDelete, mock.MatchedBy(func(rec models.ReservationRecord) bool {
		return rec.ID == r.ID.String()
	})).Return(nil).Once()

	released, err := svc.Release(ctx, monday, 1290)
	require.NoError(t, err)
	assert.Equal(t, r.ID, released.ID)

	for _, slot := range r.Slots {
		_, err := svc.Lookup(monday, slot)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, []string{events.EventReservationCreated, events.EventReservationReleased}, log.all())
	worker.AssertExpectations(t)
}

func TestReleaseRollsBackWhenDeleteFails(t *testing.T) {
	svc, adapter, worker, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	worker.On("EnqueueTask", ctx, mock.Anything, mock.Anything).Return(nil)
	r, err := svc.Reserve(ctx, monday, 1200, models.Details{ClientName: "Ema"})
	require.NoError(t, err)

	adapter.On("Delete", ctx, r.ID.String()).Return(errors.New("down")).Once()
	_, err = svc.Release(ctx, monday, 1200)
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	got, err := svc.Lookup(monday, 1290)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Slots, got.Slots)
	assert.NoError(t, svc.Verify())
}

func TestLoadWeek(t *testing.T) {
	svc, adapter, _, log := newTestService(t)
	ctx := context.Background()

	id := uuid.New()
	records := []models.ReservationRecord{
		{ID: id.String(), Date: "2025-01-14", Time: "09:00", ClientName: "Ana", Payment: "Pagó", Amount: decimal.NewFromInt(88000)},
		{ID: "legacy", Date: "2025-01-14", Time: "10:00", ClientName: "Solapado"},
		{Date: "2025-01-16", Time: "19:00", ClientName: "Sin ID", Payment: "seña"},
	}
	adapter.On("LoadSnapshot", ctx, monday, monday.AddDate(0, 0, 7)).Return(records, nil).Once()
	// the row without an ID is rewritten under its derived one
	derived := records[2].ReservationID().String()
	adapter.On("Commit", ctx, mock.MatchedBy(func(rec models.ReservationRecord) bool {
		return rec.ID == derived && rec.ClientName == "Sin ID" && rec.Time == "19:00"
	})).Return(nil).Once()
	adapter.On("Delete", ctx, "").Return(nil).Once()

	res, err := svc.LoadWeek(ctx, monday.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Migrated)
	adapter.AssertExpectations(t)
	require.Len(t, res.Issues, 1)
	assert.ErrorIs(t, res.Issues[0].Err, domain.ErrSlotConflict)

	stats := svc.WeeklyStats(monday)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.PerDay[1])
	assert.Equal(t, 1, stats.PerDay[3])

	got, err := svc.Lookup(monday.AddDate(0, 0, 1), 600)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	upcoming := svc.Upcoming(monday, 0)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Ana", upcoming[0].ClientName)

	assert.Equal(t, []string{events.EventWeekLoaded}, log.all())
}

func TestLoadWeekFailureKeepsState(t *testing.T) {
	svc, adapter, worker, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	worker.On("EnqueueTask", ctx, mock.Anything, mock.Anything).Return(nil)
	_, err := svc.Reserve(ctx, monday, 420, models.Details{})
	require.NoError(t, err)

	adapter.On("LoadSnapshot", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("offline")).Once()
	_, err = svc.LoadWeek(ctx, monday)
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	_, err = svc.Lookup(monday, 420)
	assert.NoError(t, err)
}

func TestWriteLoadsUnseenWeek(t *testing.T) {
	svc, adapter := newMemoryService(t)
	ctx := context.Background()
	nextMonday := schedule.AddDays(monday, 7)

	require.NoError(t, adapter.Commit(ctx, models.ReservationRecord{
		ID: uuid.NewString(), Date: "2025-01-20", Time: "10:00", ClientName: "Ana",
	}))
	_, err := svc.LoadWeek(ctx, monday)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, nextMonday, 600, models.Details{ClientName: "Bruno"})
	assert.ErrorIs(t, err, domain.ErrSlotConflict)
	assert.Equal(t, 1, adapter.Len())

	got, err := svc.Lookup(nextMonday, 630)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.ClientName)

	_, err = svc.Reserve(ctx, nextMonday, 720, models.Details{ClientName: "Bruno"})
	require.NoError(t, err)

	res, err := svc.LoadWeek(ctx, nextMonday)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Zero(t, res.Skipped)
}

func TestWriteFailsWhenWeekCannotLoad(t *testing.T) {
	svc, adapter, worker, log := newTestService(t)
	ctx := context.Background()

	adapter.On("LoadSnapshot", ctx, monday, monday.AddDate(0, 0, 7)).Return(nil, errors.New("offline"))

	_, err := svc.Reserve(ctx, monday, 600, models.Details{ClientName: "Bruno"})
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	name := "Otro"
	_, err = svc.Modify(ctx, monday, 600, models.Changes{ClientName: &name})
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	_, err = svc.Release(ctx, monday, 600)
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	adapter.AssertNumberOfCalls(t, "LoadSnapshot", 3)
	adapter.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything)
	adapter.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, log.all())
}

func TestRecordWithoutIDIsRewritten(t *testing.T) {
	svc, adapter := newMemoryService(t)
	ctx := context.Background()

	legacy := models.ReservationRecord{Date: "2025-01-13", Time: "10:00", ClientName: "Legacy"}
	require.NoError(t, adapter.Commit(ctx, legacy))

	res, err := svc.LoadWeek(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 1, res.Migrated)

	stored, err := adapter.LoadSnapshot(ctx, monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, legacy.ReservationID().String(), stored[0].ID)

	name := "Renombrado"
	_, err = svc.Modify(ctx, monday, 630, models.Changes{ClientName: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.Len())

	_, err = svc.Release(ctx, monday, 600)
	require.NoError(t, err)
	assert.Zero(t, adapter.Len())

	res, err = svc.LoadWeek(ctx, monday)
	require.NoError(t, err)
	assert.Zero(t, res.Loaded)
	_, err = svc.Lookup(monday, 600)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReleaseRollbackKeepsInsertionOrder(t *testing.T) {
	svc, adapter, worker, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Twice()
	worker.On("EnqueueTask", ctx, mock.Anything, mock.Anything).Return(nil)
	first, err := svc.Reserve(ctx, monday, 600, models.Details{ClientName: "Primero"})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, schedule.AddDays(monday, 1), 600, models.Details{ClientName: "Segundo"})
	require.NoError(t, err)

	seqOf := func() uint64 {
		for _, o := range svc.Snapshot(monday, schedule.AddDays(monday, 7)) {
			if o.Reservation.ID == first.ID {
				return o.Seq
			}
		}
		return 0
	}
	before := seqOf()
	require.NotZero(t, before)

	adapter.On("Delete", ctx, first.ID.String()).Return(errors.New("down")).Once()
	_, err = svc.Release(ctx, monday, 600)
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	assert.Equal(t, before, seqOf())
	assert.NoError(t, svc.Verify())
}

func TestDay(t *testing.T) {
	svc, adapter, _, _ := newTestService(t)
	ctx := context.Background()
	emptyWeek(adapter, monday)
	svc.mirror = nil

	adapter.On("Commit", ctx, mock.Anything).Return(nil).Once()
	r, err := svc.Reserve(ctx, monday, 1080, models.Details{ClientName: "Nico"})
	require.NoError(t, err)

	day := svc.Day(monday)
	require.Len(t, day, schedule.SlotsPerDay)
	assert.Equal(t, "07:00", day[0].Time)
	assert.True(t, decimal.NewFromInt(22000).Equal(day[0].Price))
	assert.Nil(t, day[0].Reservation)

	held := 0
	for _, v := range day {
		if v.Reservation == nil {
			continue
		}
		held++
		assert.Equal(t, r.ID, v.Reservation.ID)
		assert.Equal(t, v.Slot == 1080, v.Anchor)
		assert.True(t, decimal.NewFromInt(30000).Equal(v.Price))
	}
	assert.Equal(t, svc.SpanSlots(), held)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "conflict", Outcome(domain.ErrSlotConflict))
	assert.Equal(t, "invalid", Outcome(domain.ErrInvalidSlot))
	assert.Equal(t, "not_found", Outcome(domain.ErrNotFound))
	assert.Equal(t, "sync_unavailable", Outcome(syncError(errors.New("x"))))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
