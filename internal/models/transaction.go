package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionPurpose string

const (
	PurposePayment             TransactionPurpose = "PAYMENT"
	PurposeBookingEscrow       TransactionPurpose = "BOOKING_ESCROW"
	PurposeBookingFeeForBooker TransactionPurpose = "BOOKING_FEE_FOR_BOOKER"
	PurposePaymentToUser       TransactionPurpose = "PAYMENT_TO_USER"
	PurposeBookingFeeForDJ     TransactionPurpose = "BOOKING_FEE_FOR_DJ"
	PurposeRefund              TransactionPurpose = "REFUND"
	PurposeWithdrawal          TransactionPurpose = "WITHDRAWAL"
)

func (p TransactionPurpose) Valid() bool {
	switch p {
	case PurposePayment, PurposeBookingEscrow, PurposeBookingFeeForBooker, PurposePaymentToUser,
		PurposeBookingFeeForDJ, PurposeRefund, PurposeWithdrawal:
		return true
	}
	return false
}

// Decreasing purposes are always stored negative and are balance-checked.
func (p TransactionPurpose) Decreasing() bool {
	switch p {
	case PurposeBookingEscrow, PurposeBookingFeeForBooker, PurposeBookingFeeForDJ, PurposeWithdrawal:
		return true
	}
	return false
}

// Ledger entity tags.
const (
	EntityBooking    = "booking"
	EntityWithdrawal = "withdrawal"
)

// Transaction is an append-only ledger entry. AmountCents is signed.
type Transaction struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	AmountCents int64              `json:"amount"`
	Purpose     TransactionPurpose `json:"purpose"`
	Entity      string             `json:"entity"`
	EntityPK    uuid.UUID          `json:"entity_pk"`
	IsHold      bool               `json:"is_hold"`
	CreatedAt   time.Time          `json:"created_at"`
}

// StatementLine is a transaction with the user's running non-hold balance after it.
type StatementLine struct {
	Transaction
	RunningBalanceCents int64 `json:"running_balance"`
}
