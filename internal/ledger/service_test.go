package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gigbook/backend/internal/ledger/ledgertest"
	"github.com/gigbook/backend/internal/models"
)

func newTestService() (Service, *ledgertest.Store) {
	store := ledgertest.New()
	return NewService(store, store, nil, nil), store
}

func TestGetUserBalance_DefaultsToZero(t *testing.T) {
	svc, _ := newTestService()
	got, err := svc.GetUserBalance(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("GetUserBalance: %v", err)
	}
	if got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
}

func TestCreateTransaction_DecreasingIsNegative(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	booking := uuid.New()
	store.Seed(user, 50000, models.PurposePayment)

	tr, err := svc.CreateTransaction(context.Background(), nil, Entry{
		UserID: user, AmountCents: 33250, Purpose: models.PurposeBookingEscrow,
		Entity: models.EntityBooking, EntityPK: booking,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tr.AmountCents != -33250 {
		t.Errorf("amount: got %d, want -33250", tr.AmountCents)
	}
	if got := store.BalanceOf(user); got != 16750 {
		t.Errorf("balance: got %d, want 16750", got)
	}
	if len(store.Locked) == 0 || store.Locked[0] != user {
		t.Error("expected the user's account row to be locked")
	}
}

func TestCreateTransaction_InsufficientBalanceLeavesNoRow(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	store.Seed(user, 1000, models.PurposePayment)

	_, err := svc.CreateTransaction(context.Background(), nil, Entry{
		UserID: user, AmountCents: -1001, Purpose: models.PurposeWithdrawal,
		Entity: models.EntityWithdrawal, EntityPK: uuid.New(),
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if n := len(store.Entries()); n != 1 {
		t.Errorf("entries: got %d, want 1", n)
	}
	if got := store.BalanceOf(user); got != 1000 {
		t.Errorf("balance: got %d, want 1000", got)
	}
}

func TestCreateTransaction_ExactBalanceAllowed(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	store.Seed(user, 1000, models.PurposePayment)

	if _, err := svc.CreateTransaction(context.Background(), nil, Entry{
		UserID: user, AmountCents: 1000, Purpose: models.PurposeWithdrawal,
		Entity: models.EntityWithdrawal, EntityPK: uuid.New(),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := store.BalanceOf(user); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
}

func TestCreateTransaction_IdempotentRetry(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	booking := uuid.New()
	entry := Entry{UserID: user, AmountCents: 25000, Purpose: models.PurposePayment, Entity: models.EntityBooking, EntityPK: booking}

	first, err := svc.CreateTransaction(context.Background(), nil, entry)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.CreateTransaction(context.Background(), nil, entry)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Error("retry should return the existing row")
	}
	if n := len(store.Entries()); n != 1 {
		t.Errorf("entries: got %d, want 1", n)
	}

	// Same key with a new hold flag updates the row in place.
	entry.IsHold = true
	if _, err := svc.CreateTransaction(context.Background(), nil, entry); err != nil {
		t.Fatalf("hold update: %v", err)
	}
	if got := store.BalanceOf(user); got != 0 {
		t.Errorf("balance with hold: got %d, want 0", got)
	}
}

func TestCreateTransaction_RetriedDebitSkipsBalanceCheck(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	booking := uuid.New()
	store.Seed(user, 1000, models.PurposePayment)
	entry := Entry{UserID: user, AmountCents: 1000, Purpose: models.PurposeBookingEscrow, Entity: models.EntityBooking, EntityPK: booking}

	if _, err := svc.CreateTransaction(context.Background(), nil, entry); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.CreateTransaction(context.Background(), nil, entry); err != nil {
		t.Fatalf("retry must not be refused: %v", err)
	}
	if got := store.BalanceOf(user); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
}

func TestCreateTransaction_UnknownPurpose(t *testing.T) {
	svc, store := newTestService()
	_, err := svc.CreateTransaction(context.Background(), nil, Entry{UserID: uuid.New(), AmountCents: 1, Purpose: "BONUS"})
	if !errors.Is(err, ErrUnknownPurpose) {
		t.Fatalf("expected ErrUnknownPurpose, got %v", err)
	}
	if n := len(store.Entries()); n != 0 {
		t.Errorf("entries: got %d, want 0", n)
	}
}

func TestStatement_RunningBalance(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	store.Seed(user, 10000, models.PurposePayment)
	store.Seed(user, -2500, models.PurposeWithdrawal)

	lines, err := svc.Statement(context.Background(), user)
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if lines[0].RunningBalanceCents != 7500 || lines[1].RunningBalanceCents != 10000 {
		t.Errorf("running balances: got %d, %d", lines[0].RunningBalanceCents, lines[1].RunningBalanceCents)
	}
}

func TestHasEntry(t *testing.T) {
	svc, store := newTestService()
	user := uuid.New()
	booking := uuid.New()
	store.Seed(user, 50000, models.PurposePayment)
	ctx := context.Background()

	has, err := svc.HasEntry(ctx, nil, user, models.PurposeBookingEscrow, models.EntityBooking, booking)
	if err != nil || has {
		t.Fatalf("before posting: has = %v, err = %v", has, err)
	}
	if _, err := svc.CreateTransaction(ctx, nil, Entry{
		UserID: user, AmountCents: 33250, Purpose: models.PurposeBookingEscrow,
		Entity: models.EntityBooking, EntityPK: booking,
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if has, _ := svc.HasEntry(ctx, nil, user, models.PurposeBookingEscrow, models.EntityBooking, booking); !has {
		t.Error("escrow entry not found")
	}
	if has, _ := svc.HasEntry(ctx, nil, user, models.PurposeBookingEscrow, models.EntityBooking, uuid.New()); has {
		t.Error("escrow reported for another booking")
	}
}
