package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbook/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, email, name, role, price_per_hour_cents, stripe_account_id, payouts_enabled, is_staff, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.PricePerHourCents, &a.StripeAccountID, &a.PayoutsEnabled, &a.IsStaff, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
// Every balance-affecting ledger write takes this lock first, so two payments
// for the same user are serialized.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// SetPayoutsEnabled updates the onboarding flag of the account linked to a Stripe connected account.
func (r *AccountRepo) SetPayoutsEnabled(ctx context.Context, stripeAccountID string, enabled bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET payouts_enabled = $2, updated_at = now() WHERE stripe_account_id = $1
	`, stripeAccountID, enabled)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
