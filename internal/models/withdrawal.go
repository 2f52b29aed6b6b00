package models

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalInReview WithdrawalStatus = "IN_REVIEW"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
	WithdrawalCanceled WithdrawalStatus = "CANCELED"
)

// WithdrawalResultSuccess is stored once the card payout went through.
const WithdrawalResultSuccess = "Success"

type Withdrawal struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	AmountCents int64            `json:"amount"`
	Status      WithdrawalStatus `json:"status"`
	CardID      string           `json:"card_id"`
	TransferID  string           `json:"transfer_id,omitempty"`
	Result      string           `json:"result"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
