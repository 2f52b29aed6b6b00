// Package ledgertest provides an in-memory ledger store for tests.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/models"
)

// Store implements ledger.Store and ledger.AccountLocker in memory.
type Store struct {
	mu      sync.Mutex
	entries []*models.Transaction
	// Locked records every user whose row was locked, in order.
	Locked []uuid.UUID
	now    time.Time
}

func New() *Store {
	return &Store{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Seed appends an entry directly, bypassing balance checks.
func (s *Store) Seed(userID uuid.UUID, amountCents int64, purpose models.TransactionPurpose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(&models.Transaction{ID: uuid.New(), UserID: userID, AmountCents: amountCents, Purpose: purpose, Entity: "seed"})
}

func (s *Store) append(t *models.Transaction) {
	s.now = s.now.Add(time.Second)
	t.CreatedAt = s.now
	cp := *t
	s.entries = append(s.entries, &cp)
}

func (s *Store) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(t)
	return nil
}

func (s *Store) FindMatchTx(_ context.Context, _ pgx.Tx, t *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.AmountCents == t.AmountCents && e.UserID == t.UserID && e.Entity == t.Entity &&
			e.EntityPK == t.EntityPK && e.Purpose == t.Purpose {
			cp := *e
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ExistsTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, purpose models.TransactionPurpose, entity string, entityPK uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UserID == userID && e.Purpose == purpose && e.Entity == entity && e.EntityPK == entityPK {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SetHoldTx(_ context.Context, _ pgx.Tx, id uuid.UUID, isHold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			e.IsHold = isHold
		}
	}
	return nil
}

func (s *Store) BalanceTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID) (int64, error) {
	return s.Balance(ctx, userID)
}

func (s *Store) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.entries {
		if e.UserID == userID && !e.IsHold {
			total += e.AmountCents
		}
	}
	return total, nil
}

func (s *Store) Statement(_ context.Context, userID uuid.UUID) ([]*models.StatementLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var running int64
	var lines []*models.StatementLine
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if !e.IsHold {
			running += e.AmountCents
		}
		lines = append([]*models.StatementLine{{Transaction: *e, RunningBalanceCents: running}}, lines...)
	}
	return lines, nil
}

func (s *Store) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Locked = append(s.Locked, id)
	return &models.Account{ID: id}, nil
}

// Entries returns a copy of every stored entry.
func (s *Store) Entries() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// ByPurpose returns the entries of one purpose, optionally for one user (uuid.Nil for all).
func (s *Store) ByPurpose(userID uuid.UUID, purpose models.TransactionPurpose) []models.Transaction {
	var out []models.Transaction
	for _, e := range s.Entries() {
		if e.Purpose == purpose && (userID == uuid.Nil || e.UserID == userID) {
			out = append(out, e)
		}
	}
	return out
}

// BalanceOf is Balance without a context, for assertions.
func (s *Store) BalanceOf(userID uuid.UUID) int64 {
	b, _ := s.Balance(context.Background(), userID)
	return b
}
