package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/ledger"
	"github.com/gigbook/backend/internal/models"
)

// WithdrawalStore persists withdrawal requests.
type WithdrawalStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	SetResult(ctx context.Context, id uuid.UUID, result string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error)
}

// ErrPayoutFailed marks a card payout the provider refused. The failure is
// stored as the withdrawal result and is never retried automatically.
var ErrPayoutFailed = errors.New("payout failed")

// AccountReader loads the payout details of a user.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// RequestWithdrawal files an IN_REVIEW request. The balance is checked now and
// again when the WITHDRAWAL entry is posted.
func (o *Orchestrator) RequestWithdrawal(ctx context.Context, actor models.Actor, amountCents int64, cardID string) (*models.Withdrawal, error) {
	if amountCents <= 0 {
		return nil, models.NewValidationError("amount", models.CodeInvalidAmount, "amount must be positive")
	}
	if cardID == "" {
		return nil, models.NewValidationError("card_id", models.CodeInvalidAmount, "card is required")
	}
	w := &models.Withdrawal{
		ID:          uuid.New(),
		UserID:      actor.AccountID,
		AmountCents: amountCents,
		Status:      models.WithdrawalInReview,
		CardID:      cardID,
	}
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		if err := o.ledger.LockUser(ctx, tx, actor.AccountID); err != nil {
			return err
		}
		balance, err := o.ledger.GetUserBalance(ctx, tx, actor.AccountID)
		if err != nil {
			return err
		}
		if balance < amountCents {
			return ledger.ErrInsufficientFunds
		}
		return o.withdrawals.CreateTx(ctx, tx, w)
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordWithdrawal(string(w.Status))
	o.log.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", w.UserID, "amount_cents", amountCents)
	return w, nil
}

func (o *Orchestrator) GetWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error) {
	w, err := o.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff && w.UserID != actor.AccountID {
		return nil, models.ErrNotFound
	}
	return w, nil
}

func (o *Orchestrator) ListWithdrawals(ctx context.Context, actor models.Actor) ([]*models.Withdrawal, error) {
	return o.withdrawals.ListByUser(ctx, actor.AccountID)
}

// updateWithdrawal locks w, checks it is IN_REVIEW and applies fn.
func (o *Orchestrator) updateWithdrawal(ctx context.Context, id uuid.UUID, fn func(w *models.Withdrawal) error) (*models.Withdrawal, error) {
	var out *models.Withdrawal
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		w, err := o.withdrawals.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalInReview {
			return models.NewValidationError("status", models.CodeInvalidStatus,
				fmt.Sprintf("withdrawal is %s", w.Status))
		}
		if err := fn(w); err != nil {
			return err
		}
		if err := o.withdrawals.UpdateTx(ctx, tx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordWithdrawal(string(out.Status))
	o.log.Info("withdrawal updated", "withdrawal_id", out.ID, "status", out.Status)
	return out, nil
}

// ApproveWithdrawal sends the amount to the user's connected account. The
// ledger entry and card payout follow when the provider reports the transfer.
func (o *Orchestrator) ApproveWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error) {
	if !actor.IsStaff {
		return nil, models.ErrForbidden
	}
	return o.updateWithdrawal(ctx, id, func(w *models.Withdrawal) error {
		acc, err := o.accounts.GetByID(ctx, w.UserID)
		if err != nil {
			return err
		}
		if acc.StripeAccountID == "" || !acc.PayoutsEnabled {
			return models.NewValidationError("user_id", models.CodeInvalidStatus, "payouts are not enabled for this account")
		}
		transferID, err := o.provider.CreateTransfer(ctx, w.AmountCents, acc.StripeAccountID, map[string]string{
			"withdrawal_id": w.ID.String(),
		})
		if err != nil {
			return err
		}
		w.TransferID = transferID
		w.Status = models.WithdrawalApproved
		return nil
	})
}

// RejectWithdrawal closes the request; message is kept as its result.
func (o *Orchestrator) RejectWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor, message string) (*models.Withdrawal, error) {
	if !actor.IsStaff {
		return nil, models.ErrForbidden
	}
	return o.updateWithdrawal(ctx, id, func(w *models.Withdrawal) error {
		w.Status = models.WithdrawalRejected
		w.Result = message
		return nil
	})
}

func (o *Orchestrator) CancelWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error) {
	return o.updateWithdrawal(ctx, id, func(w *models.Withdrawal) error {
		if w.UserID != actor.AccountID {
			return models.ErrNotFound
		}
		w.Status = models.WithdrawalCanceled
		return nil
	})
}

// HandleTransferCreated runs when the provider reports an approved withdrawal's
// transfer: it posts the WITHDRAWAL entry and pays the card. A refused payout
// is recorded and acknowledged; it waits for an operator.
func (o *Orchestrator) HandleTransferCreated(ctx context.Context, withdrawalID uuid.UUID) error {
	w, err := o.Withdraw(ctx, withdrawalID)
	if err != nil || w == nil {
		return err
	}
	err = o.PayoutToCard(ctx, w)
	if errors.Is(err, ErrPayoutFailed) {
		return nil
	}
	return err
}

// Withdraw posts the WITHDRAWAL entry for an approved withdrawal. It returns
// nil without error once a payout was attempted, whatever its result.
func (o *Orchestrator) Withdraw(ctx context.Context, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	var out *models.Withdrawal
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		w, err := o.withdrawals.GetByIDForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalApproved {
			return models.NewValidationError("status", models.CodeInvalidStatus,
				fmt.Sprintf("withdrawal is %s", w.Status))
		}
		if w.Result == models.WithdrawalResultSuccess {
			return nil
		}
		if w.Result != "" {
			o.log.Warn("withdrawal payout failed earlier, needs an operator",
				"withdrawal_id", w.ID, "result", w.Result)
			return nil
		}
		if _, err := o.ledger.CreateTransaction(ctx, tx, ledger.Entry{
			UserID:      w.UserID,
			AmountCents: w.AmountCents,
			Purpose:     models.PurposeWithdrawal,
			Entity:      models.EntityWithdrawal,
			EntityPK:    w.ID,
		}); err != nil {
			return fmt.Errorf("post withdrawal %s: %w", w.ID, err)
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PayoutToCard sends the withdrawn amount to the user's card. The outcome is
// stored in the withdrawal's result. A provider failure is returned wrapped in
// ErrPayoutFailed once it is stored.
func (o *Orchestrator) PayoutToCard(ctx context.Context, w *models.Withdrawal) error {
	acc, err := o.accounts.GetByID(ctx, w.UserID)
	if err != nil {
		return err
	}
	if _, err := o.provider.CreatePayout(ctx, w.AmountCents, acc.StripeAccountID, w.CardID); err != nil {
		if serr := o.withdrawals.SetResult(ctx, w.ID, err.Error()); serr != nil {
			o.log.Error("payout failed and result not stored", "withdrawal_id", w.ID, "error", err, "store_error", serr)
			return errors.Join(err, serr)
		}
		o.metrics.RecordWithdrawal("PAYOUT_FAILED")
		o.log.Error("payout failed", "withdrawal_id", w.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}
	return o.inTx(ctx, func(tx pgx.Tx) error {
		w.Result = models.WithdrawalResultSuccess
		if err := o.withdrawals.UpdateTx(ctx, tx, w); err != nil {
			return err
		}
		o.log.Info("payout sent", "withdrawal_id", w.ID, "amount_cents", w.AmountCents)
		return o.enqueue(ctx, tx, models.EventWithdrawalPaid, w.ID)
	})
}
