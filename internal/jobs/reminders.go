package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/gigbook/backend/internal/models"
)

// Reminder offsets in hours. The first two count back from the event start,
// rating reminders count forward from it.
var (
	AwaitingAcceptanceHours = []int{12, 24, 48}
	BeforeEventHours        = []int{12, 24, 36}
	RatingReminderHours     = []int{12, 96}
)

// FinalRatingReminderHours is the offset of the last rating reminder.
const FinalRatingReminderHours = 96

// RemindFunc enqueues a reminder about a booking whose event is hours away.
type RemindFunc func(ctx context.Context, event models.BookingEvent, bookingID uuid.UUID, hours int) error

// Inserter is the part of river.Client used to enqueue jobs outside a transaction.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// NewReminder returns a RemindFunc backed by river.Client.Insert. Reminders are
// unique per booking, event and offset within an hour, so a sweep that runs
// more often than hourly still sends each one once.
func NewReminder(ins Inserter) RemindFunc {
	return func(ctx context.Context, event models.BookingEvent, bookingID uuid.UUID, hours int) error {
		_, err := ins.Insert(ctx, BookingEventArgs{Event: event, EntityPK: bookingID, Hours: hours}, &river.InsertOpts{
			UniqueOpts: river.UniqueOpts{ByArgs: true, ByPeriod: time.Hour},
		})
		return err
	}
}

// AwaitingAcceptanceReminders nudges the performer about PAID bookings that
// start 12, 24 or 48 hours from the current hour.
func (s *Sweeper) AwaitingAcceptanceReminders(ctx context.Context) error {
	return s.remindBeforeStart(ctx, "awaiting_acceptance_reminders", models.BookingPaid,
		models.EventAwaitingAcceptance, AwaitingAcceptanceHours)
}

// BeforeEventReminders tells both parties an accepted gig starts in 12, 24 or 36 hours.
func (s *Sweeper) BeforeEventReminders(ctx context.Context) error {
	return s.remindBeforeStart(ctx, "before_event_reminders", models.BookingAcceptedByDJ,
		models.EventBeforeEvent, BeforeEventHours)
}

// RatingReminders asks both parties to rate a gig that started 12 or 96 hours
// before the current hour and can still be rated.
func (s *Sweeper) RatingReminders(ctx context.Context) error {
	hour := s.clock.Now().Truncate(time.Hour)
	for _, h := range RatingReminderHours {
		from := hour.Add(-time.Duration(h) * time.Hour)
		ids, err := s.store.ListRatableStartedBetween(ctx, from, from.Add(time.Hour))
		if err != nil {
			return fmt.Errorf("list bookings to rate %dh after start: %w", h, err)
		}
		s.each(ctx, "rating_reminders", ids, func(ctx context.Context, id uuid.UUID) error {
			return s.remind(ctx, models.EventRatingReminder, id, h)
		})
	}
	return nil
}

func (s *Sweeper) remindBeforeStart(ctx context.Context, sweep string, status models.BookingStatus,
	event models.BookingEvent, offsets []int) error {
	hour := s.clock.Now().Truncate(time.Hour)
	for _, h := range offsets {
		from := hour.Add(time.Duration(h) * time.Hour)
		ids, err := s.store.ListByStatusStartingBetween(ctx, status, from, from.Add(time.Hour))
		if err != nil {
			return fmt.Errorf("list %s bookings %dh before start: %w", status, h, err)
		}
		s.each(ctx, sweep, ids, func(ctx context.Context, id uuid.UUID) error {
			return s.remind(ctx, event, id, h)
		})
	}
	return nil
}

type AwaitingAcceptanceRemindersWorker struct {
	river.WorkerDefaults[AwaitingAcceptanceRemindersArgs]
	s *Sweeper
}

func (w *AwaitingAcceptanceRemindersWorker) Work(ctx context.Context, _ *river.Job[AwaitingAcceptanceRemindersArgs]) error {
	return w.s.AwaitingAcceptanceReminders(ctx)
}

type BeforeEventRemindersWorker struct {
	river.WorkerDefaults[BeforeEventRemindersArgs]
	s *Sweeper
}

func (w *BeforeEventRemindersWorker) Work(ctx context.Context, _ *river.Job[BeforeEventRemindersArgs]) error {
	return w.s.BeforeEventReminders(ctx)
}

type RatingRemindersWorker struct {
	river.WorkerDefaults[RatingRemindersArgs]
	s *Sweeper
}

func (w *RatingRemindersWorker) Work(ctx context.Context, _ *river.Job[RatingRemindersArgs]) error {
	return w.s.RatingReminders(ctx)
}
