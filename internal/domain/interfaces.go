package domain

import (
	"context"
	"time"

	"github.com/scoutear/gestor-turnos/internal/models"
)

// SyncAdapter is the durable record store behind the reservation engine.
// Commit is an upsert keyed by record ID; concurrent writers resolve last-writer-wins.
type SyncAdapter interface {
	LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error)
	Commit(ctx context.Context, record models.ReservationRecord) error
	Delete(ctx context.Context, id string) error
}

// HealthChecker is implemented by adapters that can report reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// MirrorWriter applies reservation changes to the spreadsheet copy.
type MirrorWriter interface {
	UpsertReservation(ctx context.Context, record models.ReservationRecord) error
	DeleteReservationRow(ctx context.Context, id string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, record models.ReservationRecord) error
}

// TaskStore persists mirror tasks so they survive restarts.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	PurgeCompletedSyncTasks(ctx context.Context, cutoff time.Time) (int64, error)
}
