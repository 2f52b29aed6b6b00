// Package ledger is the only writer of transaction rows and the source of truth
// for user balances. A balance is the sum of a user's non-hold entries; it is
// never stored.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
)

// ErrInsufficientFunds is returned when an entry would push the user's balance below zero.
var ErrInsufficientFunds = models.ErrInsufficientBalance

// ErrUnknownPurpose is returned for a purpose outside the known set.
var ErrUnknownPurpose = errors.New("unknown transaction purpose")

// Store is the persistence the ledger needs.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	FindMatchTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) (*models.Transaction, error)
	ExistsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, purpose models.TransactionPurpose, entity string, entityPK uuid.UUID) (bool, error)
	SetHoldTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, isHold bool) error
	BalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Statement(ctx context.Context, userID uuid.UUID) ([]*models.StatementLine, error)
}

// AccountLocker serializes balance-affecting writes per user.
type AccountLocker interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// Entry describes a ledger row to create.
type Entry struct {
	UserID      uuid.UUID
	AmountCents int64
	Purpose     models.TransactionPurpose
	Entity      string
	EntityPK    uuid.UUID
	IsHold      bool
}

type Service interface {
	CreateTransaction(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	LockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	GetUserBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error)
	HasEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, purpose models.TransactionPurpose, entity string, entityPK uuid.UUID) (bool, error)
	Statement(ctx context.Context, userID uuid.UUID) ([]*models.StatementLine, error)
}

type service struct {
	store   Store
	locker  AccountLocker
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewService(store Store, locker AccountLocker, m *metrics.Metrics, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, locker: locker, metrics: m, log: log}
}

var _ Service = (*service)(nil)

// CreateTransaction writes one entry inside tx. Decreasing purposes are forced
// negative and refused with ErrInsufficientFunds when the balance would go below
// zero. An identical entry (amount, user, entity, entity pk, purpose) is reused
// instead of duplicated, so retried postings are no-ops apart from the hold flag.
func (s *service) CreateTransaction(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if !e.Purpose.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, e.Purpose)
	}
	amount := e.AmountCents
	if e.Purpose.Decreasing() && amount > 0 {
		amount = -amount
	}
	t := &models.Transaction{
		ID:          uuid.New(),
		UserID:      e.UserID,
		AmountCents: amount,
		Purpose:     e.Purpose,
		Entity:      e.Entity,
		EntityPK:    e.EntityPK,
		IsHold:      e.IsHold,
	}

	if err := s.LockUser(ctx, tx, e.UserID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindMatchTx(ctx, tx, t)
	switch {
	case err == nil:
		if existing.IsHold != e.IsHold {
			if err := s.store.SetHoldTx(ctx, tx, existing.ID, e.IsHold); err != nil {
				return nil, fmt.Errorf("update transaction hold: %w", err)
			}
			existing.IsHold = e.IsHold
		}
		return existing, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("find matching transaction: %w", err)
	}

	if e.Purpose.Decreasing() {
		balance, err := s.store.BalanceTx(ctx, tx, e.UserID)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}
		if balance+amount < 0 {
			s.metrics.RecordRejectedPosting(string(e.Purpose))
			s.log.Warn("ledger entry refused", "user_id", e.UserID, "purpose", e.Purpose,
				"amount_cents", amount, "balance_cents", balance)
			return nil, ErrInsufficientFunds
		}
	}

	if err := s.store.CreateTx(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	s.metrics.RecordPosting(string(t.Purpose), t.AmountCents)
	s.log.Info("ledger entry created", "user_id", t.UserID, "purpose", t.Purpose,
		"amount_cents", t.AmountCents, "entity", t.Entity, "entity_pk", t.EntityPK)
	return t, nil
}

// LockUser takes the row lock on the user's account for the rest of tx.
func (s *service) LockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if _, err := s.locker.GetByIDForUpdate(ctx, tx, userID); err != nil {
		return fmt.Errorf("lock account %s: %w", userID, err)
	}
	return nil
}

// GetUserBalance sums the user's non-hold entries; 0 when there are none.
// With a nil tx it reads outside any transaction.
func (s *service) GetUserBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	if tx == nil {
		return s.store.Balance(ctx, userID)
	}
	return s.store.BalanceTx(ctx, tx, userID)
}

// HasEntry reports whether the user has any entry of purpose for the entity.
func (s *service) HasEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, purpose models.TransactionPurpose, entity string, entityPK uuid.UUID) (bool, error) {
	ok, err := s.store.ExistsTx(ctx, tx, userID, purpose, entity, entityPK)
	if err != nil {
		return false, fmt.Errorf("look up %s entry: %w", purpose, err)
	}
	return ok, nil
}

func (s *service) Statement(ctx context.Context, userID uuid.UUID) ([]*models.StatementLine, error) {
	return s.store.Statement(ctx, userID)
}
