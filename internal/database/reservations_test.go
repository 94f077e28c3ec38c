package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutear/gestor-turnos/internal/models"
)

var weekStart = time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)

func TestReservationsCommitAndLoad(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	rec := models.ReservationRecord{
		ID:         "6d8f3a70-0000-4000-8000-000000000001",
		Date:       "2025-01-14",
		Time:       "22:00",
		ClientName: "Juan",
		Phone:      "1155550000",
		Payment:    models.LabelDeposit,
		Amount:     decimal.NewFromInt(30000),
		Comment:    "trae pelotas",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, db.Commit(ctx, rec))
	require.NoError(t, db.Commit(ctx, models.ReservationRecord{ID: "early", Date: "2025-01-14", Time: "07:00", ClientName: "Ana"}))
	require.NoError(t, db.Commit(ctx, models.ReservationRecord{ID: "other-week", Date: "2025-01-20", Time: "07:00", ClientName: "Beto"}))

	records, err := db.LoadSnapshot(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "early", records[0].ID, "ordered by date and time")
	got := records[1]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Seña", got.Payment)
	assert.True(t, rec.Amount.Equal(got.Amount))
	assert.Equal(t, "trae pelotas", got.Comment)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestReservationsUpsertLastWriterWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	rec := models.ReservationRecord{ID: "r1", Date: "2025-01-15", Time: "10:00", ClientName: "Ana", CreatedAt: created, UpdatedAt: created}
	require.NoError(t, db.Commit(ctx, rec))

	rec.ClientName = "Ana María"
	rec.Payment = models.LabelPaid
	rec.CreatedAt = created.Add(time.Hour)
	rec.UpdatedAt = created.Add(2 * time.Hour)
	require.NoError(t, db.Commit(ctx, rec))

	records, err := db.LoadSnapshot(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ana María", records[0].ClientName)
	assert.Equal(t, "Pagó", records[0].Payment)
	assert.True(t, created.Equal(records[0].CreatedAt), "created_at is not overwritten")
}

func TestReservationsDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Commit(ctx, models.ReservationRecord{ID: "r1", Date: "2025-01-15", Time: "10:00"}))
	require.NoError(t, db.Delete(ctx, "r1"))
	require.NoError(t, db.Delete(ctx, "r1"), "deleting twice is fine")

	records, err := db.LoadSnapshot(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestConcurrentCommits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.Commit(ctx, models.ReservationRecord{
				ID: "same", Date: "2025-01-16", Time: "18:00", ClientName: string(rune('A' + i)),
			}))
		}(i)
	}
	wg.Wait()

	records, err := db.LoadSnapshot(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, records, 1, "one row per reservation ID")
}
