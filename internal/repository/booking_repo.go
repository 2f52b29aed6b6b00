package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbook/backend/internal/models"
)

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

// Begin starts a transaction on the underlying pool.
func (r *BookingRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const bookingColumns = `id, booker_id, performer_id, created_by_id, event_start, duration, price_per_hour_cents,
	adjustment_minutes, booker_fee, booker_fee_percent, dj_fee, dj_fee_percent,
	sum_to_pay_from_balance, sum_to_pay_from_card, applied_discounts,
	payment_intent_id, payment_intent_secret, status, decline_comment, can_be_rated, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.BookerID, &b.PerformerID, &b.CreatedByID, &b.EventStart, &b.DurationMinutes, &b.PricePerHourCents,
		&b.AdjustmentMinutes, &b.BookerFeeCents, &b.BookerFeePercent, &b.DJFeeCents, &b.DJFeePercent,
		&b.SumToPayFromBalanceCents, &b.SumToPayFromCardCents, &b.AppliedDiscounts,
		&b.PaymentIntentID, &b.PaymentIntentSecret, &b.Status, &b.DeclineComment, &b.CanBeRated, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if b.AppliedDiscounts == nil {
		b.AppliedDiscounts = []models.AppliedDiscount{}
	}
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]*models.Booking, error) {
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func discountsParam(b *models.Booking) []models.AppliedDiscount {
	if b.AppliedDiscounts == nil {
		return []models.AppliedDiscount{}
	}
	return b.AppliedDiscounts
}

func (r *BookingRepo) CreateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	return tx.QueryRow(ctx, `
		INSERT INTO bookings (id, booker_id, performer_id, created_by_id, event_start, duration, price_per_hour_cents,
			adjustment_minutes, booker_fee, booker_fee_percent, dj_fee, dj_fee_percent,
			sum_to_pay_from_balance, sum_to_pay_from_card, applied_discounts,
			payment_intent_id, payment_intent_secret, status, decline_comment, can_be_rated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at
	`, b.ID, b.BookerID, b.PerformerID, b.CreatedByID, b.EventStart, b.DurationMinutes, b.PricePerHourCents,
		b.AdjustmentMinutes, b.BookerFeeCents, b.BookerFeePercent, b.DJFeeCents, b.DJFeePercent,
		b.SumToPayFromBalanceCents, b.SumToPayFromCardCents, discountsParam(b),
		b.PaymentIntentID, b.PaymentIntentSecret, b.Status, b.DeclineComment, b.CanBeRated).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// GetByIDForUpdate locks the booking row. Call within a transaction.
func (r *BookingRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

// GetByPaymentIntentForUpdate locks the booking that owns a payment intent.
func (r *BookingRepo) GetByPaymentIntentForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*models.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE payment_intent_id = $1 FOR UPDATE
	`, intentID))
}

func (r *BookingRepo) UpdateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	return tx.QueryRow(ctx, `
		UPDATE bookings SET event_start = $2, duration = $3, price_per_hour_cents = $4,
			adjustment_minutes = $5, booker_fee = $6, booker_fee_percent = $7, dj_fee = $8, dj_fee_percent = $9,
			sum_to_pay_from_balance = $10, sum_to_pay_from_card = $11, applied_discounts = $12,
			payment_intent_id = $13, payment_intent_secret = $14, status = $15, decline_comment = $16,
			can_be_rated = $17, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, b.EventStart, b.DurationMinutes, b.PricePerHourCents,
		b.AdjustmentMinutes, b.BookerFeeCents, b.BookerFeePercent, b.DJFeeCents, b.DJFeePercent,
		b.SumToPayFromBalanceCents, b.SumToPayFromCardCents, discountsParam(b),
		b.PaymentIntentID, b.PaymentIntentSecret, b.Status, b.DeclineComment, b.CanBeRated).Scan(&b.UpdatedAt)
}

func (r *BookingRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	return err
}

// ListActiveByPerformerTx returns the performer's bookings that still block the calendar.
func (r *BookingRepo) ListActiveByPerformerTx(ctx context.Context, tx pgx.Tx, performerID uuid.UUID) ([]*models.Booking, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE performer_id = $1 AND status = ANY($2)
	`, performerID, statusStrings(models.ActiveBookingStatuses))
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *BookingRepo) ListActiveByPerformer(ctx context.Context, performerID uuid.UUID) ([]*models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE performer_id = $1 AND status = ANY($2)
	`, performerID, statusStrings(models.ActiveBookingStatuses))
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ListByAccount returns bookings where the account is the booker or the performer, newest first.
func (r *BookingRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE booker_id = $1 OR performer_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ListUnpaidCreatedBefore selects abandoned NOT_PAID bookings.
func (r *BookingRepo) ListUnpaidCreatedBefore(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id FROM bookings WHERE status = $1 AND created_at <= $2 ORDER BY created_at
	`, models.BookingNotPaid, before)
}

// ListPaidUnaccepted selects PAID bookings created before createdBefore or whose event already started.
func (r *BookingRepo) ListPaidUnaccepted(ctx context.Context, createdBefore, now time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id FROM bookings WHERE status = $1 AND (created_at <= $2 OR event_start <= $3) ORDER BY created_at
	`, models.BookingPaid, createdBefore, now)
}

// ListByStatusStartedBefore selects bookings in status whose event started before the given instant.
func (r *BookingRepo) ListByStatusStartedBefore(ctx context.Context, status models.BookingStatus, before time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id FROM bookings WHERE status = $1 AND event_start <= $2 ORDER BY event_start
	`, status, before)
}

// ListByStatusStartingBetween selects bookings in status whose event starts in [from, to).
func (r *BookingRepo) ListByStatusStartingBetween(ctx context.Context, status models.BookingStatus, from, to time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id FROM bookings WHERE status = $1 AND event_start >= $2 AND event_start < $3 ORDER BY event_start
	`, status, from, to)
}

// ListRatableStartedBetween selects rateable bookings whose event started in [from, to).
func (r *BookingRepo) ListRatableStartedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id FROM bookings
		WHERE status = ANY($1) AND can_be_rated AND event_start >= $2 AND event_start < $3
		ORDER BY event_start
	`, statusStrings(models.RatableBookingStatuses), from, to)
}

// DisableRatingEndedBefore turns off can_be_rated for bookings whose event ended before the given instant.
func (r *BookingRepo) DisableRatingEndedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET can_be_rated = FALSE, updated_at = now()
		WHERE can_be_rated AND event_start + make_interval(mins => duration) <= $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *BookingRepo) listIDs(ctx context.Context, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
