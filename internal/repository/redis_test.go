package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutear/gestor-turnos/internal/models"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

var monday = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

func TestRedisAdapter(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewRedisAdapter(client, "test")
	ctx := context.Background()

	rec := models.ReservationRecord{
		ID:         "r1",
		Date:       "2025-01-14",
		Time:       "18:00",
		ClientName: "Lucía",
		Payment:    "Seña",
		Amount:     decimal.NewFromInt(120000),
	}

	t.Run("CommitAndLoad", func(t *testing.T) {
		require.NoError(t, repo.Commit(ctx, rec))
		require.NoError(t, repo.Commit(ctx, models.ReservationRecord{ID: "r0", Date: "2025-01-14", Time: "09:00"}))

		assert.True(t, s.Exists("test:reservations:2025-01-14"))

		got, err := repo.LoadSnapshot(ctx, monday, monday.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "r0", got[0].ID)
		assert.Equal(t, "Lucía", got[1].ClientName)
		assert.True(t, got[1].Amount.Equal(rec.Amount))
	})

	t.Run("RangeIsHalfOpen", func(t *testing.T) {
		got, err := repo.LoadSnapshot(ctx, monday, monday.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("CommitMovesDate", func(t *testing.T) {
		moved := rec
		moved.Date = "2025-01-16"
		require.NoError(t, repo.Commit(ctx, moved))

		fields, err := client.HKeys(ctx, "test:reservations:2025-01-14").Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"r0"}, fields)

		date, err := client.HGet(ctx, "test:reservation_dates", "r1").Result()
		require.NoError(t, err)
		assert.Equal(t, "2025-01-16", date)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "r1"))
		got, err := repo.LoadSnapshot(ctx, monday, monday.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r0", got[0].ID)

		// unknown IDs are ignored
		assert.NoError(t, repo.Delete(ctx, "missing"))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

func TestRedisAdapterUnavailable(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewRedisAdapter(client, "")
	ctx := context.Background()

	s.Close()

	assert.Error(t, repo.Ping(ctx))
	assert.Error(t, repo.Commit(ctx, models.ReservationRecord{ID: "x", Date: "2025-01-13", Time: "09:00"}))
	_, err := repo.LoadSnapshot(ctx, monday, monday.AddDate(0, 0, 1))
	assert.Error(t, err)
}

func TestRedisAdapterNilClient(t *testing.T) {
	repo := NewRedisAdapter(nil, "")
	assert.Error(t, repo.Ping(context.Background()))
	assert.Error(t, repo.Delete(context.Background(), "x"))
}
