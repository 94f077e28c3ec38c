package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/models"
)

const recheckInterval = time.Minute

// FailoverAdapter routes calls to the primary adapter and switches to the fallback
// when the primary errors. The primary is retried once recheckInterval has passed.
// Writes taken by the fallback are not copied back to the primary.
type FailoverAdapter struct {
	primary   domain.SyncAdapter
	fallback  domain.SyncAdapter
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverAdapter(primary, fallback domain.SyncAdapter, logger *zerolog.Logger) *FailoverAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverAdapter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverAdapter) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverAdapter) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary sync adapter failed, switching to fallback")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary decides whether the next call should try the primary.
func (r *FailoverAdapter) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recheckInterval
}

func (r *FailoverAdapter) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary sync adapter recovered")
	}
}

func (r *FailoverAdapter) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	if r.usePrimary() {
		records, err := r.primary.LoadSnapshot(ctx, from, to)
		if err == nil {
			r.recovered()
			return records, nil
		}
		r.markDown(err)
	}
	return r.fallback.LoadSnapshot(ctx, from, to)
}

func (r *FailoverAdapter) Commit(ctx context.Context, record models.ReservationRecord) error {
	if r.usePrimary() {
		err := r.primary.Commit(ctx, record)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Commit(ctx, record)
}

func (r *FailoverAdapter) Delete(ctx context.Context, id string) error {
	if r.usePrimary() {
		err := r.primary.Delete(ctx, id)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Delete(ctx, id)
}

// Ping succeeds while either side is reachable.
func (r *FailoverAdapter) Ping(ctx context.Context) error {
	err := ping(ctx, r.primary)
	if err == nil {
		return nil
	}
	if ferr := ping(ctx, r.fallback); ferr == nil {
		return nil
	}
	return err
}

func ping(ctx context.Context, adapter domain.SyncAdapter) error {
	if hc, ok := adapter.(domain.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
