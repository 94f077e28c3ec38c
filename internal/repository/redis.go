package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scoutear/gestor-turnos/internal/config"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// NewRedisClient builds a client from config. It does not dial until first use.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// RedisAdapter keeps one hash per calendar date (field = reservation ID, value = JSON
// record) plus an ID → date index used by Delete.
type RedisAdapter struct {
	client *redis.Client
	prefix string
}

func NewRedisAdapter(client *redis.Client, prefix string) *RedisAdapter {
	if prefix == "" {
		prefix = "turnos"
	}
	return &RedisAdapter{client: client, prefix: prefix}
}

func (r *RedisAdapter) dayKey(date string) string {
	return fmt.Sprintf("%s:reservations:%s", r.prefix, date)
}

func (r *RedisAdapter) indexKey() string {
	return r.prefix + ":reservation_dates"
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	return Ping(ctx, r.client)
}

func (r *RedisAdapter) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}

	pipe := r.client.Pipeline()
	var cmds []*redis.MapStringStringCmd
	for d := schedule.Midnight(from); schedule.DateKey(d) < schedule.DateKey(to); d = schedule.AddDays(d, 1) {
		cmds = append(cmds, pipe.HGetAll(ctx, r.dayKey(schedule.DateKey(d))))
	}
	if len(cmds) == 0 {
		return nil, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load reservations from redis: %w", err)
	}

	var records []models.ReservationRecord
	for _, cmd := range cmds {
		for id, raw := range cmd.Val() {
			var rec models.ReservationRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal reservation %s: %w", id, err)
			}
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Time < records[j].Time
	})
	return records, nil
}

func (r *RedisAdapter) Commit(ctx context.Context, rec models.ReservationRecord) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation: %w", err)
	}

	prev, err := r.client.HGet(ctx, r.indexKey(), rec.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read reservation index: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && prev != rec.Date {
			pipe.HDel(ctx, r.dayKey(prev), rec.ID)
		}
		pipe.HSet(ctx, r.dayKey(rec.Date), rec.ID, data)
		pipe.HSet(ctx, r.indexKey(), rec.ID, rec.Date)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit reservation %s to redis: %w", rec.ID, err)
	}
	return nil
}

func (r *RedisAdapter) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	date, err := r.client.HGet(ctx, r.indexKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reservation index: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.dayKey(date), id)
		pipe.HDel(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete reservation %s from redis: %w", id, err)
	}
	return nil
}
