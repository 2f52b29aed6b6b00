package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbook/backend/internal/models"
)

type ChangeRecordRepo struct {
	pool *pgxpool.Pool
}

func NewChangeRecordRepo(pool *pgxpool.Pool) *ChangeRecordRepo {
	return &ChangeRecordRepo{pool: pool}
}

func (r *ChangeRecordRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.BookingChangeRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO booking_change_records (id, booking_id, field, before_value, after_value, author_id, is_staff)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, c.ID, c.BookingID, c.Field, c.Before, c.After, c.AuthorID, c.IsStaff).Scan(&c.CreatedAt)
}

func (r *ChangeRecordRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.BookingChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, field, before_value, after_value, author_id, is_staff, created_at
		FROM booking_change_records WHERE booking_id = $1 ORDER BY created_at
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.BookingChangeRecord
	for rows.Next() {
		var c models.BookingChangeRecord
		if err := rows.Scan(&c.ID, &c.BookingID, &c.Field, &c.Before, &c.After, &c.AuthorID, &c.IsStaff, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
