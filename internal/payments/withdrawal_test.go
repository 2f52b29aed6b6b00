package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gigbook/backend/internal/models"
)

func TestWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(f.performer.ID, 20000, models.PurposePaymentToUser)
	dj := models.Actor{AccountID: f.performer.ID}
	staff := models.Actor{AccountID: models.SystemPlatformAccountID, IsStaff: true}
	ctx := context.Background()

	if _, err := f.o.RequestWithdrawal(ctx, dj, 30000, "card_1"); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("over balance: got %v, want ErrInsufficientBalance", err)
	}
	w, err := f.o.RequestWithdrawal(ctx, dj, 15000, "card_1")
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if w.Status != models.WithdrawalInReview {
		t.Errorf("status = %s", w.Status)
	}

	if _, err := f.o.ApproveWithdrawal(ctx, w.ID, dj); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("self approve: got %v, want ErrForbidden", err)
	}
	w, err = f.o.ApproveWithdrawal(ctx, w.ID, staff)
	if err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	if w.Status != models.WithdrawalApproved || w.TransferID != "tr_1" {
		t.Errorf("approved withdrawal = %+v", w)
	}
	// nothing leaves the ledger until the transfer is reported
	if bal := f.ledger.BalanceOf(f.performer.ID); bal != 20000 {
		t.Errorf("balance = %d, want 20000", bal)
	}

	if err := f.o.HandleTransferCreated(ctx, w.ID); err != nil {
		t.Fatalf("HandleTransferCreated: %v", err)
	}
	if bal := f.ledger.BalanceOf(f.performer.ID); bal != 5000 {
		t.Errorf("balance = %d, want 5000", bal)
	}
	stored, _ := f.withdrawals.GetByID(ctx, w.ID)
	if stored.Result != models.WithdrawalResultSuccess {
		t.Errorf("result = %q", stored.Result)
	}
	if len(f.provider.payouts) != 1 || f.provider.payouts[0] != 15000 {
		t.Errorf("payouts = %v", f.provider.payouts)
	}

	// redelivery after success is a no-op
	if err := f.o.HandleTransferCreated(ctx, w.ID); err != nil {
		t.Fatalf("redelivered HandleTransferCreated: %v", err)
	}
	if len(f.provider.payouts) != 1 || len(f.ledger.ByPurpose(f.performer.ID, models.PurposeWithdrawal)) != 1 {
		t.Error("redelivery paid out twice")
	}
}

func TestPayoutToCard_FailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(f.performer.ID, 20000, models.PurposePaymentToUser)
	f.provider.payoutErr = &models.ProviderError{Op: "create_payout", Err: errors.New("card declined")}
	dj := models.Actor{AccountID: f.performer.ID}
	staff := models.Actor{AccountID: models.SystemPlatformAccountID, IsStaff: true}
	ctx := context.Background()

	w, err := f.o.RequestWithdrawal(ctx, dj, 10000, "card_1")
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := f.o.ApproveWithdrawal(ctx, w.ID, staff); err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}

	// the refusal is recorded and acknowledged
	if err := f.o.HandleTransferCreated(ctx, w.ID); err != nil {
		t.Fatalf("HandleTransferCreated: %v", err)
	}
	stored, _ := f.withdrawals.GetByID(ctx, w.ID)
	if stored.Result != f.provider.payoutErr.Error() {
		t.Errorf("result = %q, want %q", stored.Result, f.provider.payoutErr.Error())
	}
	if n := len(f.ledger.ByPurpose(f.performer.ID, models.PurposeWithdrawal)); n != 1 {
		t.Errorf("withdrawal entries = %d", n)
	}

	// a redelivered transfer event does not try the card again
	f.provider.payoutErr = nil
	if err := f.o.HandleTransferCreated(ctx, w.ID); err != nil {
		t.Fatalf("redelivered HandleTransferCreated: %v", err)
	}
	if len(f.provider.payouts) != 0 {
		t.Errorf("payouts = %v, want none", f.provider.payouts)
	}
	if n := len(f.ledger.ByPurpose(f.performer.ID, models.PurposeWithdrawal)); n != 1 {
		t.Errorf("withdrawal entries after redelivery = %d", n)
	}
}

func TestPayoutToCard_ReturnsPayoutFailed(t *testing.T) {
	f := newFixture(t)
	f.provider.payoutErr = &models.ProviderError{Op: "create_payout", Err: errors.New("card declined")}
	w := &models.Withdrawal{ID: uuid.New(), UserID: f.performer.ID, AmountCents: 500,
		Status: models.WithdrawalApproved, CardID: "card_1"}
	f.withdrawals.rows[w.ID] = w

	err := f.o.PayoutToCard(context.Background(), w)
	var perr *models.ProviderError
	if !errors.Is(err, ErrPayoutFailed) || !errors.As(err, &perr) {
		t.Fatalf("got %v, want ErrPayoutFailed wrapping a ProviderError", err)
	}
}

func TestRejectAndCancelWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(f.performer.ID, 20000, models.PurposePaymentToUser)
	dj := models.Actor{AccountID: f.performer.ID}
	staff := models.Actor{AccountID: models.SystemPlatformAccountID, IsStaff: true}
	ctx := context.Background()

	w1, _ := f.o.RequestWithdrawal(ctx, dj, 1000, "card_1")
	w2, _ := f.o.RequestWithdrawal(ctx, dj, 1000, "card_1")

	if _, err := f.o.RejectWithdrawal(ctx, w1.ID, dj, ""); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("self reject: got %v", err)
	}
	got, err := f.o.RejectWithdrawal(ctx, w1.ID, staff, "card not verified")
	if err != nil || got.Status != models.WithdrawalRejected || got.Result != "card not verified" {
		t.Fatalf("RejectWithdrawal: %v %+v", err, got)
	}
	got, err = f.o.CancelWithdrawal(ctx, w2.ID, dj)
	if err != nil || got.Status != models.WithdrawalCanceled {
		t.Fatalf("CancelWithdrawal: %v %+v", err, got)
	}

	_, err = f.o.ApproveWithdrawal(ctx, w1.ID, staff)
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Code != models.CodeInvalidStatus {
		t.Errorf("approve rejected: got %v", err)
	}
}
