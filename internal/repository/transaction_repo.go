package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbook/backend/internal/models"
)

// TransactionRepo stores ledger rows. Only the ledger service writes through it.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, user_id, amount, purpose, entity, entity_pk, is_hold, created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(&t.ID, &t.UserID, &t.AmountCents, &t.Purpose, &t.Entity, &t.EntityPK, &t.IsHold, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, amount, purpose, entity, entity_pk, is_hold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.UserID, t.AmountCents, t.Purpose, t.Entity, t.EntityPK, t.IsHold).Scan(&t.CreatedAt)
}

// FindMatchTx returns the entry with the same amount, user, entity and purpose, or models.ErrNotFound.
func (r *TransactionRepo) FindMatchTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) (*models.Transaction, error) {
	found, err := scanTransaction(tx.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE amount = $1 AND user_id = $2 AND entity = $3 AND entity_pk = $4 AND purpose = $5
		ORDER BY created_at LIMIT 1
	`, t.AmountCents, t.UserID, t.Entity, t.EntityPK, t.Purpose))
	if err != nil {
		return nil, notFound(err)
	}
	return found, nil
}

// ExistsTx reports whether the user has an entry of purpose for the entity.
func (r *TransactionRepo) ExistsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, purpose models.TransactionPurpose, entity string, entityPK uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions WHERE user_id = $1 AND purpose = $2 AND entity = $3 AND entity_pk = $4
		)
	`, userID, purpose, entity, entityPK).Scan(&exists)
	return exists, err
}

func (r *TransactionRepo) SetHoldTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, isHold bool) error {
	_, err := tx.Exec(ctx, `UPDATE transactions SET is_hold = $2 WHERE id = $1`, id, isHold)
	return err
}

// BalanceTx sums the non-hold entries of a user inside the given transaction.
func (r *TransactionRepo) BalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND NOT is_hold
	`, userID).Scan(&total)
	return total, err
}

func (r *TransactionRepo) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND NOT is_hold
	`, userID).Scan(&total)
	return total, err
}

// Statement lists a user's entries newest first with the running non-hold balance after each.
func (r *TransactionRepo) Statement(ctx context.Context, userID uuid.UUID) ([]*models.StatementLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`,
			SUM(CASE WHEN is_hold THEN 0 ELSE amount END) OVER (ORDER BY created_at, id) AS running_balance
		FROM transactions WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.StatementLine
	for rows.Next() {
		var l models.StatementLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.AmountCents, &l.Purpose, &l.Entity, &l.EntityPK, &l.IsHold, &l.CreatedAt, &l.RunningBalanceCents); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
