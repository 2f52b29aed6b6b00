// Package jobs holds the river workers: booking side effects enqueued inside
// booking transactions, and the periodic sweeps that time bookings out.
package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/gigbook/backend/internal/models"
)

// BookingEventArgs carries a committed booking change to its side effects.
type BookingEventArgs struct {
	Event    models.BookingEvent `json:"event"`
	EntityPK uuid.UUID           `json:"entity_pk"`
	// Hours is the reminder offset from the event start; zero for other events.
	Hours int `json:"hours,omitempty"`
}

func (BookingEventArgs) Kind() string { return "booking_event" }

type PaymentTimeoutArgs struct{}

func (PaymentTimeoutArgs) Kind() string { return "sweep_payment_timeout" }

type DJResponseTimeoutArgs struct{}

func (DJResponseTimeoutArgs) Kind() string { return "sweep_dj_response_timeout" }

type EventStartedArgs struct{}

func (EventStartedArgs) Kind() string { return "sweep_event_started" }

type PayoutArgs struct{}

func (PayoutArgs) Kind() string { return "sweep_payout" }

type RatingWindowArgs struct{}

func (RatingWindowArgs) Kind() string { return "sweep_rating_window" }

type AwaitingAcceptanceRemindersArgs struct{}

func (AwaitingAcceptanceRemindersArgs) Kind() string { return "sweep_awaiting_acceptance_reminders" }

type BeforeEventRemindersArgs struct{}

func (BeforeEventRemindersArgs) Kind() string { return "sweep_before_event_reminders" }

type RatingRemindersArgs struct{}

func (RatingRemindersArgs) Kind() string { return "sweep_rating_reminders" }

// TxInserter is the part of river.Client used to enqueue jobs inside a transaction.
type TxInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// NewEnqueuer returns a models.EnqueueEventTxFunc backed by river.Client.InsertTx.
func NewEnqueuer(ins TxInserter) models.EnqueueEventTxFunc {
	return func(ctx context.Context, tx pgx.Tx, event models.BookingEvent, entityPK uuid.UUID) error {
		_, err := ins.InsertTx(ctx, tx, BookingEventArgs{Event: event, EntityPK: entityPK}, nil)
		return err
	}
}
