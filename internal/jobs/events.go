package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/notify"
	"github.com/gigbook/backend/internal/pricing"
)

// BookingReader loads bookings for side effects.
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type WithdrawalReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
}

// Email templates.
const (
	TemplateBookingRequested = "booking_requested"
	TemplateBookingPaid      = "booking_paid"
	TemplateBookingAccepted  = "booking_accepted"
	TemplateBookingEnded     = "booking_ended"
	TemplateWithdrawalPaid   = "withdrawal_paid"

	TemplateAwaitingAcceptance  = "awaiting_acceptance"
	TemplateBeforeEvent         = "before_event"
	TemplateRatingReminder      = "rating_reminder"
	TemplateRatingFinalReminder = "rating_final_reminder"
)

// BookingEventWorker delivers notifications, emails and chat rooms after a
// booking change commits.
type BookingEventWorker struct {
	river.WorkerDefaults[BookingEventArgs]
	bookings    BookingReader
	accounts    AccountReader
	withdrawals WithdrawalReader
	notifier    notify.Notifier
	mailer      notify.Mailer
	rooms       notify.ChatRooms
	log         *slog.Logger
}

func NewBookingEventWorker(bookings BookingReader, accounts AccountReader, withdrawals WithdrawalReader,
	notifier notify.Notifier, mailer notify.Mailer, rooms notify.ChatRooms, log *slog.Logger) *BookingEventWorker {
	if log == nil {
		log = slog.Default()
	}
	return &BookingEventWorker{
		bookings: bookings, accounts: accounts, withdrawals: withdrawals,
		notifier: notifier, mailer: mailer, rooms: rooms, log: log,
	}
}

func (w *BookingEventWorker) Work(ctx context.Context, job *river.Job[BookingEventArgs]) error {
	args := job.Args
	if args.Event == models.EventWithdrawalPaid {
		return w.withdrawalPaid(ctx, args.EntityPK)
	}

	b, err := w.bookings.GetByID(ctx, args.EntityPK)
	if errors.Is(err, models.ErrNotFound) {
		w.log.Info("booking gone, side effects skipped", "booking_id", args.EntityPK, "event", args.Event)
		return nil
	}
	if err != nil {
		return err
	}
	booker, err := w.accounts.GetByID(ctx, b.BookerID)
	if err != nil {
		return fmt.Errorf("get booker: %w", err)
	}
	performer, err := w.accounts.GetByID(ctx, b.PerformerID)
	if err != nil {
		return fmt.Errorf("get performer: %w", err)
	}
	data := map[string]any{
		"booking_id":  b.ID,
		"event_start": b.EventStart,
		"status":      b.Status,
		"price":       pricing.ToDollars(pricing.Price(b)).StringFixed(2),
	}

	switch args.Event {
	case models.EventBookingCreated:
		other := performer
		if b.CreatedByID == b.PerformerID {
			other = booker
		}
		if err := w.notifier.Notify(ctx, args.Event, other, b); err != nil {
			return err
		}
		return w.mailer.Send(ctx, TemplateBookingRequested, []string{other.Email}, data)

	case models.EventBookingPaid:
		if err := w.rooms.CreateRoom(ctx, b); err != nil {
			return err
		}
		if err := w.notifier.Notify(ctx, args.Event, performer, b); err != nil {
			return err
		}
		data["earnings"] = pricing.ToDollars(pricing.DJEarnings(b)).StringFixed(2)
		return w.mailer.Send(ctx, TemplateBookingPaid, []string{performer.Email}, data)

	case models.EventBookingAccepted:
		if err := w.notifier.Notify(ctx, args.Event, booker, b); err != nil {
			return err
		}
		return w.mailer.Send(ctx, TemplateBookingAccepted, []string{booker.Email}, data)

	case models.EventBookingCompleted:
		return w.notifier.Notify(ctx, args.Event, performer, b)

	case models.EventAwaitingAcceptance:
		if b.Status != models.BookingPaid {
			return w.skipReminder(args, b)
		}
		to := []*models.Account{performer}
		if args.Hours == 24 {
			to = append(to, booker)
		}
		return w.remind(ctx, args, TemplateAwaitingAcceptance, b, data, to...)

	case models.EventBeforeEvent:
		if b.Status != models.BookingAcceptedByDJ {
			return w.skipReminder(args, b)
		}
		return w.remind(ctx, args, TemplateBeforeEvent, b, data, booker, performer)

	case models.EventRatingReminder:
		if !b.CanBeRated {
			return w.skipReminder(args, b)
		}
		template := TemplateRatingReminder
		if args.Hours >= FinalRatingReminderHours {
			template = TemplateRatingFinalReminder
		}
		return w.remind(ctx, args, template, b, data, booker, performer)

	case models.EventBookingDeclined, models.EventBookingCanceled, models.EventBookingRejected:
		for _, acc := range []*models.Account{booker, performer} {
			if err := w.notifier.Notify(ctx, args.Event, acc, b); err != nil {
				return err
			}
		}
		return w.mailer.Send(ctx, TemplateBookingEnded, []string{booker.Email, performer.Email}, data)
	}

	w.log.Warn("unknown booking event", "event", args.Event, "booking_id", b.ID)
	return nil
}

func (w *BookingEventWorker) remind(ctx context.Context, args BookingEventArgs, template string,
	b *models.Booking, data map[string]any, to ...*models.Account) error {
	data["hours"] = args.Hours
	emails := make([]string, 0, len(to))
	for _, acc := range to {
		if err := w.notifier.Notify(ctx, args.Event, acc, b); err != nil {
			return err
		}
		emails = append(emails, acc.Email)
	}
	return w.mailer.Send(ctx, template, emails, data)
}

// skipReminder drops a reminder whose booking moved on after it was queued.
func (w *BookingEventWorker) skipReminder(args BookingEventArgs, b *models.Booking) error {
	w.log.Info("stale reminder skipped", "event", args.Event, "booking_id", b.ID, "status", b.Status)
	return nil
}

func (w *BookingEventWorker) withdrawalPaid(ctx context.Context, id uuid.UUID) error {
	wd, err := w.withdrawals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get withdrawal: %w", err)
	}
	acc, err := w.accounts.GetByID(ctx, wd.UserID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	return w.mailer.Send(ctx, TemplateWithdrawalPaid, []string{acc.Email}, map[string]any{
		"withdrawal_id": wd.ID,
		"amount":        pricing.ToDollars(wd.AmountCents).StringFixed(2),
	})
}
