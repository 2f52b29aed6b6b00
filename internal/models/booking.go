package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingNotPaid          BookingStatus = "NOT_PAID"
	BookingPaid             BookingStatus = "PAID"
	BookingAcceptedByDJ     BookingStatus = "ACCEPTED_BY_DJ"
	BookingSuccess          BookingStatus = "SUCCESS"
	BookingCompleted        BookingStatus = "COMPLETED"
	BookingDeclinedByBooker BookingStatus = "DECLINED_BY_BOOKER"
	BookingDeclinedByDJ     BookingStatus = "DECLINED_BY_DJ"
	BookingDeclinedByStaff  BookingStatus = "DECLINED_BY_STAFF"
	BookingCanceledByBooker BookingStatus = "CANCELED_BY_BOOKER"
	BookingCanceledByDJ     BookingStatus = "CANCELED_BY_DJ"
	BookingRejected         BookingStatus = "REJECTED"
	BookingInDispute        BookingStatus = "IN_DISPUTE"
	BookingDisputed         BookingStatus = "DISPUTED"
)

// ActiveBookingStatuses block the performer's calendar. A gig that is running
// or already delivered keeps its days busy.
var ActiveBookingStatuses = []BookingStatus{
	BookingNotPaid, BookingPaid, BookingAcceptedByDJ, BookingSuccess, BookingCompleted,
}

// RatableBookingStatuses are the statuses in which the parties are asked to rate each other.
var RatableBookingStatuses = []BookingStatus{BookingSuccess, BookingCompleted, BookingInDispute, BookingDisputed}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCompleted, BookingDeclinedByBooker, BookingDeclinedByDJ, BookingDeclinedByStaff,
		BookingCanceledByBooker, BookingCanceledByDJ, BookingRejected, BookingDisputed:
		return true
	}
	return false
}

// Tracked booking fields written to the change history.
const (
	FieldStatus         = "status"
	FieldDeclineComment = "decline_comment"
)

// AppliedDiscount is the snapshot stored when a promocode is applied.
// PriceCents is the booking price right before this discount.
type AppliedDiscount struct {
	PromocodeID           uuid.UUID       `json:"promocode_id"`
	PromocodeType         PromocodeType   `json:"promocode_type"`
	Amount                decimal.Decimal `json:"amount"`
	PriceCents            int64           `json:"price"`
	CalculatedAmountCents int64           `json:"calculated_amount"`
	Date                  time.Time       `json:"date"`
}

// Booking is one gig engagement between a booker and a DJ. Money fields are cents.
type Booking struct {
	ID                       uuid.UUID         `json:"id"`
	BookerID                 uuid.UUID         `json:"booker_id"`
	PerformerID              uuid.UUID         `json:"performer_id"`
	CreatedByID              uuid.UUID         `json:"created_by_id"`
	EventStart               time.Time         `json:"event_start"`
	DurationMinutes          int               `json:"duration"`
	PricePerHourCents        int64             `json:"price_per_hour"`
	AdjustmentMinutes        int               `json:"adjustment_minutes"`
	BookerFeeCents           int64             `json:"booker_fee"`
	BookerFeePercent         int64             `json:"booker_fee_percent"`
	DJFeeCents               int64             `json:"dj_fee"`
	DJFeePercent             int64             `json:"dj_fee_percent"`
	SumToPayFromBalanceCents int64             `json:"sum_to_pay_from_balance"`
	SumToPayFromCardCents    int64             `json:"sum_to_pay_from_card"`
	AppliedDiscounts         []AppliedDiscount `json:"applied_discounts"`
	PaymentIntentID          string            `json:"payment_intent_id,omitempty"`
	PaymentIntentSecret      string            `json:"-"`
	Status                   BookingStatus     `json:"status"`
	DeclineComment           string            `json:"decline_comment"`
	CanBeRated               bool              `json:"can_be_rated"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

func (b *Booking) EventEnd() time.Time {
	return b.EventStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Discount returns the applied discount for a promocode, if any.
func (b *Booking) Discount(promocodeID uuid.UUID) (AppliedDiscount, bool) {
	for _, d := range b.AppliedDiscounts {
		if d.PromocodeID == promocodeID {
			return d, true
		}
	}
	return AppliedDiscount{}, false
}

// BookingChangeRecord is one audit entry for a tracked booking field.
type BookingChangeRecord struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	Field     string    `json:"field"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	AuthorID  uuid.UUID `json:"author_id"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}
