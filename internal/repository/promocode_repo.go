package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbook/backend/internal/models"
)

type PromocodeRepo struct {
	pool *pgxpool.Pool
}

func NewPromocodeRepo(pool *pgxpool.Pool) *PromocodeRepo {
	return &PromocodeRepo{pool: pool}
}

const promocodeColumns = `id, code, promocode_type, amount, max_application_count, start_date, end_date, is_active, created_at`

func scanPromocode(row pgx.Row) (*models.Promocode, error) {
	var p models.Promocode
	err := row.Scan(&p.ID, &p.Code, &p.Type, &p.Amount, &p.MaxApplicationCount, &p.StartDate, &p.EndDate, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PromocodeRepo) Create(ctx context.Context, p *models.Promocode) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO promocodes (id, code, promocode_type, amount, max_application_count, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, p.ID, p.Code, p.Type, p.Amount, p.MaxApplicationCount, p.StartDate, p.EndDate, p.IsActive).Scan(&p.CreatedAt)
}

// GetByCodeForUpdate locks the promocode row so concurrent applications are counted one at a time.
func (r *PromocodeRepo) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Promocode, error) {
	return scanPromocode(tx.QueryRow(ctx, `SELECT `+promocodeColumns+` FROM promocodes WHERE code = $1 FOR UPDATE`, code))
}

func (r *PromocodeRepo) CountApplicationsTx(ctx context.Context, tx pgx.Tx, promocodeID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM promocode_bookings WHERE promocode_id = $1`, promocodeID).Scan(&n)
	return n, err
}

func (r *PromocodeRepo) IsAppliedTx(ctx context.Context, tx pgx.Tx, promocodeID, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM promocode_bookings WHERE promocode_id = $1 AND booking_id = $2)
	`, promocodeID, bookingID).Scan(&exists)
	return exists, err
}

func (r *PromocodeRepo) AddBookingTx(ctx context.Context, tx pgx.Tx, promocodeID, bookingID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO promocode_bookings (promocode_id, booking_id) VALUES ($1, $2)
	`, promocodeID, bookingID)
	return err
}
