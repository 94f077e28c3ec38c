package database

import (
	"context"
	"fmt"
	"time"

	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// LoadSnapshot returns the reservations dated in [from, to).
func (db *DB) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	query := `SELECT id, date, time, client_name, phone, payment, amount, comment, created_at, updated_at
              FROM reservations
              WHERE date >= ? AND date < ?
              ORDER BY date, time, created_at`
	rows, err := db.QueryContext(ctx, query, schedule.DateKey(from), schedule.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}
	defer rows.Close()

	var records []models.ReservationRecord
	for rows.Next() {
		var r models.ReservationRecord
		if err := rows.Scan(
			&r.ID, &r.Date, &r.Time, &r.ClientName, &r.Phone, &r.Payment, &r.Amount, &r.Comment, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return records, nil
}

// Commit upserts a reservation by ID. The creation time of an existing row is kept.
func (db *DB) Commit(ctx context.Context, r models.ReservationRecord) error {
	query := `INSERT INTO reservations (id, date, time, client_name, phone, payment, amount, comment, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                date = excluded.date,
                time = excluded.time,
                client_name = excluded.client_name,
                phone = excluded.phone,
                payment = excluded.payment,
                amount = excluded.amount,
                comment = excluded.comment,
                updated_at = excluded.updated_at`
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = updated
	}

	_, err := db.ExecContext(ctx, query,
		r.ID, r.Date, r.Time, r.ClientName, r.Phone, r.Payment, r.Amount, r.Comment, created, updated,
	)
	if err != nil {
		return fmt.Errorf("failed to commit reservation %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a reservation. Deleting a missing row is not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reservation %s: %w", id, err)
	}
	return nil
}
