// Package payments moves money for bookings and withdrawals: split payments
// between balance and card, webhook confirmation, refunds, performer payouts.
// Every ledger write and its status transition share one database transaction.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/booking"
	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/ledger"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/pricing"
)

// Payment sources for metrics.
const (
	SourceBalance = "balance"
	SourceCard    = "card"
)

// TxBeginner starts database transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Bookings is the booking persistence the orchestrator reads and deletes through.
// Status writes go through booking.Machine.
type Bookings interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error)
	GetByPaymentIntentForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*models.Booking, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// Intent is a pending card charge at the provider.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Provider is the external payment gateway.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*Intent, error)
	// CancelPaymentIntent returns models.ErrIntentAlreadyCanceled for an intent that is already canceled.
	CancelPaymentIntent(ctx context.Context, intentID string) error
	CreateTransfer(ctx context.Context, amountCents int64, destinationAccount string, metadata map[string]string) (string, error)
	CreatePayout(ctx context.Context, amountCents int64, connectedAccount, destinationCard string) (string, error)
}

// PaymentResult is returned to the booker after PayForBooking.
type PaymentResult struct {
	PaymentIntentID           string               `json:"payment_intent_id"`
	PaymentIntentClientSecret string               `json:"payment_intent_client_secret"`
	Status                    models.BookingStatus `json:"status"`
}

type Orchestrator struct {
	db          TxBeginner
	bookings    Bookings
	machine     *booking.Machine
	ledger      ledger.Service
	provider    Provider
	withdrawals WithdrawalStore
	accounts    AccountReader
	enqueue     models.EnqueueEventTxFunc
	clock       clock.Clock
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewOrchestrator(db TxBeginner, bookings Bookings, machine *booking.Machine, l ledger.Service,
	p Provider, withdrawals WithdrawalStore, accounts AccountReader, enqueue models.EnqueueEventTxFunc,
	clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		db: db, bookings: bookings, machine: machine, ledger: l, provider: p,
		withdrawals: withdrawals, accounts: accounts, enqueue: enqueue,
		clock: clk, metrics: m, log: log,
	}
}

var _ booking.Payments = (*Orchestrator)(nil)

func (o *Orchestrator) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := o.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (o *Orchestrator) post(ctx context.Context, tx pgx.Tx, b *models.Booking, user uuid.UUID, purpose models.TransactionPurpose, amount int64) error {
	if amount == 0 {
		return nil
	}
	_, err := o.ledger.CreateTransaction(ctx, tx, ledger.Entry{
		UserID:      user,
		AmountCents: amount,
		Purpose:     purpose,
		Entity:      models.EntityBooking,
		EntityPK:    b.ID,
	})
	if err != nil {
		return fmt.Errorf("post %s for booking %s: %w", purpose, b.ID, err)
	}
	return nil
}

// PayForBooking splits the price between the booker's balance and a card.
// A booking fully covered by the balance (or free) is paid at once; otherwise a
// payment intent is created for the card part and the booking stays NOT_PAID
// until the provider confirms it.
func (o *Orchestrator) PayForBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*PaymentResult, error) {
	var res *PaymentResult
	var createdIntent string
	err := o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !actor.IsStaff && actor.AccountID != b.BookerID {
			return models.ErrNotFound
		}
		if b.Status != models.BookingNotPaid {
			return models.ErrAlreadyPaid
		}
		if err := o.ledger.LockUser(ctx, tx, b.BookerID); err != nil {
			return err
		}
		balance, err := o.ledger.GetUserBalance(ctx, tx, b.BookerID)
		if err != nil {
			return err
		}
		b.SumToPayFromBalanceCents, b.SumToPayFromCardCents = pricing.Split(pricing.Price(b), balance)

		if b.SumToPayFromCardCents == 0 {
			if err := o.payFromBalanceTx(ctx, tx, b, actor); err != nil {
				return err
			}
			res = &PaymentResult{Status: b.Status}
			return nil
		}

		if b.PaymentIntentID != "" {
			if err := o.CancelPaymentIntent(ctx, b.PaymentIntentID); err != nil {
				return err
			}
		}
		intent, err := o.provider.CreatePaymentIntent(ctx, b.SumToPayFromCardCents, map[string]string{
			"booking_id": b.ID.String(),
			"booker_id":  b.BookerID.String(),
		})
		if err != nil {
			return err
		}
		createdIntent = intent.ID
		b.PaymentIntentID = intent.ID
		b.PaymentIntentSecret = intent.ClientSecret
		if err := o.machine.Save(ctx, tx, b, actor); err != nil {
			return err
		}
		o.log.Info("payment intent created", "booking_id", b.ID, "intent_id", intent.ID,
			"from_balance_cents", b.SumToPayFromBalanceCents, "from_card_cents", b.SumToPayFromCardCents)
		res = &PaymentResult{
			PaymentIntentID:           intent.ID,
			PaymentIntentClientSecret: intent.ClientSecret,
			Status:                    b.Status,
		}
		return nil
	})
	if err != nil {
		// The booking never recorded the new intent, so nothing would cancel it later.
		if createdIntent != "" {
			if cerr := o.CancelPaymentIntent(ctx, createdIntent); cerr != nil {
				o.log.Error("orphaned payment intent not canceled", "booking_id", bookingID,
					"intent_id", createdIntent, "error", cerr)
			}
		}
		return nil, err
	}
	return res, nil
}

// escrowed reports whether the booker's money for b was moved into escrow.
func (o *Orchestrator) escrowed(ctx context.Context, tx pgx.Tx, b *models.Booking) (bool, error) {
	return o.ledger.HasEntry(ctx, tx, b.BookerID, models.PurposeBookingEscrow, models.EntityBooking, b.ID)
}

// payFromBalanceTx moves price minus booker fee into escrow, charges the booker
// fee and marks the booking PAID.
func (o *Orchestrator) payFromBalanceTx(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) error {
	if err := o.holdEscrowTx(ctx, tx, b); err != nil {
		return err
	}
	if err := o.machine.Transition(ctx, tx, b, models.BookingPaid, actor); err != nil {
		return err
	}
	if err := o.enqueue(ctx, tx, models.EventBookingPaid, b.ID); err != nil {
		return err
	}
	o.metrics.RecordPayment(SourceBalance)
	o.log.Info("booking paid from balance", "booking_id", b.ID, "price_cents", pricing.Price(b))
	return nil
}

func (o *Orchestrator) holdEscrowTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	pricing.Snapshot(b)
	price := pricing.Price(b)
	if err := o.post(ctx, tx, b, b.BookerID, models.PurposeBookingEscrow, price-b.BookerFeeCents); err != nil {
		return err
	}
	return o.post(ctx, tx, b, b.BookerID, models.PurposeBookingFeeForBooker, b.BookerFeeCents)
}

// PayBooking records a card payment confirmed by the provider. Unknown intents
// and bookings that already left NOT_PAID are ignored, so redelivery is safe.
func (o *Orchestrator) PayBooking(ctx context.Context, intentID string, amountCents int64) error {
	return o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByPaymentIntentForUpdate(ctx, tx, intentID)
		if errors.Is(err, models.ErrNotFound) {
			o.log.Warn("payment for unknown intent ignored", "intent_id", intentID)
			return nil
		}
		if err != nil {
			return err
		}
		if b.Status != models.BookingNotPaid {
			o.log.Info("payment for settled booking ignored", "booking_id", b.ID, "status", b.Status)
			return nil
		}
		if err := o.post(ctx, tx, b, b.BookerID, models.PurposePayment, amountCents); err != nil {
			return err
		}
		if err := o.holdEscrowTx(ctx, tx, b); err != nil {
			return err
		}
		if err := o.machine.Transition(ctx, tx, b, models.BookingPaid, models.SystemActor); err != nil {
			return err
		}
		if err := o.enqueue(ctx, tx, models.EventBookingPaid, b.ID); err != nil {
			return err
		}
		o.metrics.RecordPayment(SourceCard)
		o.log.Info("booking paid by card", "booking_id", b.ID, "intent_id", intentID, "amount_cents", amountCents)
		return nil
	})
}

// RefundPercent is the share of the price a refund policy grants: 100 when the
// performer or the system ends the booking or the event is at least two days
// away, 70 from twelve hours, otherwise 50.
func RefundPercent(b *models.Booking, actor models.Actor, now time.Time) int {
	if actor.AccountID == b.PerformerID || actor.AccountID == models.SystemPlatformAccountID {
		return 100
	}
	untilEvent := b.EventStart.Sub(now)
	switch {
	case untilEvent >= 48*time.Hour:
		return 100
	case untilEvent >= 12*time.Hour:
		return 70
	}
	return 50
}

// RefundBookingTx credits the booker with a REFUND entry. The policy percent is
// computed and logged, but the booker always gets the full price back. A
// booking with no escrow entry was never paid and gets nothing.
func (o *Orchestrator) RefundBookingTx(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) error {
	paid, err := o.escrowed(ctx, tx, b)
	if err != nil {
		return err
	}
	if !paid {
		o.log.Info("refund skipped, booking was never paid", "booking_id", b.ID, "status", b.Status)
		return nil
	}
	percent := RefundPercent(b, actor, o.clock.Now())
	amount := pricing.Price(b)
	o.log.Info("refunding booking", "booking_id", b.ID, "policy_percent", percent, "amount_cents", amount)
	return o.post(ctx, tx, b, b.BookerID, models.PurposeRefund, amount)
}

// RejectBooking times out a PAID booking the performer never accepted and
// refunds the booker. Other statuses are left alone.
func (o *Orchestrator) RejectBooking(ctx context.Context, bookingID uuid.UUID) error {
	return o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingPaid {
			return nil
		}
		if err := o.machine.Transition(ctx, tx, b, models.BookingRejected, models.SystemActor); err != nil {
			return err
		}
		if err := o.RefundBookingTx(ctx, tx, b, models.SystemActor); err != nil {
			return err
		}
		return o.enqueue(ctx, tx, models.EventBookingRejected, b.ID)
	})
}

// TransferMoneyForDJ completes a SUCCESS booking: the performer is credited
// with price minus booker fee and charged the DJ fee. A booking that was
// accepted without ever being paid is completed with no money moved.
func (o *Orchestrator) TransferMoneyForDJ(ctx context.Context, bookingID uuid.UUID) error {
	return o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingSuccess {
			return nil
		}
		if err := o.machine.Transition(ctx, tx, b, models.BookingCompleted, models.SystemActor); err != nil {
			return err
		}
		paid, err := o.escrowed(ctx, tx, b)
		if err != nil {
			return err
		}
		if !paid {
			o.log.Warn("payout skipped, booking has no escrow", "booking_id", b.ID, "performer_id", b.PerformerID)
			return o.enqueue(ctx, tx, models.EventBookingCompleted, b.ID)
		}
		price := pricing.Price(b)
		if err := o.post(ctx, tx, b, b.PerformerID, models.PurposePaymentToUser, price-b.BookerFeeCents); err != nil {
			return err
		}
		if err := o.post(ctx, tx, b, b.PerformerID, models.PurposeBookingFeeForDJ, b.DJFeeCents); err != nil {
			return err
		}
		o.log.Info("performer paid", "booking_id", b.ID, "performer_id", b.PerformerID,
			"earnings_cents", price-b.BookerFeeCents-b.DJFeeCents)
		return o.enqueue(ctx, tx, models.EventBookingCompleted, b.ID)
	})
}

// CancelPaymentIntent cancels an intent at the provider. An intent that is
// already canceled counts as success.
func (o *Orchestrator) CancelPaymentIntent(ctx context.Context, intentID string) error {
	err := o.provider.CancelPaymentIntent(ctx, intentID)
	if errors.Is(err, models.ErrIntentAlreadyCanceled) {
		o.log.Info("payment intent already canceled", "intent_id", intentID)
		return nil
	}
	return err
}

// CancelBookingPayment rolls back an abandoned NOT_PAID booking: its payment
// intent is canceled and the booking is deleted.
func (o *Orchestrator) CancelBookingPayment(ctx context.Context, bookingID uuid.UUID) error {
	return o.inTx(ctx, func(tx pgx.Tx) error {
		b, err := o.bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if b.Status != models.BookingNotPaid {
			return nil
		}
		if b.PaymentIntentID != "" {
			if err := o.CancelPaymentIntent(ctx, b.PaymentIntentID); err != nil {
				return err
			}
		}
		if err := o.bookings.DeleteTx(ctx, tx, b.ID); err != nil {
			return fmt.Errorf("delete booking %s: %w", b.ID, err)
		}
		o.log.Info("unpaid booking removed", "booking_id", b.ID, "intent_id", b.PaymentIntentID)
		return nil
	})
}
