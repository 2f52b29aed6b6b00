package models

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BookingEvent names a side effect that follows a committed booking change.
type BookingEvent string

const (
	EventBookingCreated   BookingEvent = "booking_created"
	EventBookingPaid      BookingEvent = "booking_paid"
	EventBookingAccepted  BookingEvent = "booking_accepted"
	EventBookingDeclined  BookingEvent = "booking_declined"
	EventBookingCanceled  BookingEvent = "booking_canceled"
	EventBookingRejected  BookingEvent = "booking_rejected"
	EventBookingCompleted BookingEvent = "booking_completed"
	EventWithdrawalPaid   BookingEvent = "withdrawal_paid"

	// Reminders sent by the periodic sweeps, some hours before or after the event.
	EventAwaitingAcceptance BookingEvent = "awaiting_acceptance"
	EventBeforeEvent        BookingEvent = "before_event"
	EventRatingReminder     BookingEvent = "rating_reminder"
)

// EnqueueEventTxFunc schedules a side effect inside tx so it only runs if tx commits.
// Provided by main as a closure over river.Client.InsertTx.
type EnqueueEventTxFunc func(ctx context.Context, tx pgx.Tx, event BookingEvent, entityPK uuid.UUID) error
