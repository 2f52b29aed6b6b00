package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
)

// SweepStore selects bookings by the state a sweep acts on, so a second run
// finds nothing left to do.
type SweepStore interface {
	ListUnpaidCreatedBefore(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	ListPaidUnaccepted(ctx context.Context, createdBefore, now time.Time) ([]uuid.UUID, error)
	ListByStatusStartedBefore(ctx context.Context, status models.BookingStatus, before time.Time) ([]uuid.UUID, error)
	DisableRatingEndedBefore(ctx context.Context, before time.Time) (int64, error)
	ListByStatusStartingBetween(ctx context.Context, status models.BookingStatus, from, to time.Time) ([]uuid.UUID, error)
	ListRatableStartedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

// Payments is implemented by payments.Orchestrator.
type Payments interface {
	CancelBookingPayment(ctx context.Context, bookingID uuid.UUID) error
	RejectBooking(ctx context.Context, bookingID uuid.UUID) error
	TransferMoneyForDJ(ctx context.Context, bookingID uuid.UUID) error
}

// Lifecycle is implemented by booking.Service.
type Lifecycle interface {
	MarkSuccess(ctx context.Context, bookingID uuid.UUID) error
}

// SweepConfig holds the booking timeouts.
type SweepConfig struct {
	PaymentTimeout    time.Duration
	DJResponseTimeout time.Duration
	PayoutDelay       time.Duration
	RatingWindow      time.Duration
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PaymentTimeout:    10 * time.Minute,
		DJResponseTimeout: 48 * time.Hour,
		PayoutDelay:       72 * time.Hour,
		RatingWindow:      14 * 24 * time.Hour,
	}
}

// Sweeper runs the periodic booking sweeps.
type Sweeper struct {
	store     SweepStore
	payments  Payments
	lifecycle Lifecycle
	remind    RemindFunc
	clock     clock.Clock
	cfg       SweepConfig
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewSweeper(store SweepStore, payments Payments, lifecycle Lifecycle, remind RemindFunc, clk clock.Clock,
	cfg SweepConfig, m *metrics.Metrics, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store: store, payments: payments, lifecycle: lifecycle, remind: remind,
		clock: clk, cfg: cfg, metrics: m, log: log,
	}
}

// each applies fn to every id. Failures are logged and left for the next run.
func (s *Sweeper) each(ctx context.Context, sweep string, ids []uuid.UUID, fn func(context.Context, uuid.UUID) error) {
	failed := 0
	for _, id := range ids {
		if err := fn(ctx, id); err != nil {
			failed++
			s.log.Error("sweep item failed", "sweep", sweep, "booking_id", id, "error", err)
		}
	}
	s.metrics.RecordSweep(sweep, len(ids)-failed, failed)
	if len(ids) > 0 {
		s.log.Info("sweep finished", "sweep", sweep, "processed", len(ids)-failed, "failed", failed)
	}
}

// PaymentTimeout deletes bookings left NOT_PAID past the payment timeout.
func (s *Sweeper) PaymentTimeout(ctx context.Context) error {
	ids, err := s.store.ListUnpaidCreatedBefore(ctx, s.clock.Now().Add(-s.cfg.PaymentTimeout))
	if err != nil {
		return fmt.Errorf("list unpaid bookings: %w", err)
	}
	s.each(ctx, "payment_timeout", ids, s.payments.CancelBookingPayment)
	return nil
}

// DJResponseTimeout rejects PAID bookings the performer did not accept in
// time or before the event started.
func (s *Sweeper) DJResponseTimeout(ctx context.Context) error {
	now := s.clock.Now()
	ids, err := s.store.ListPaidUnaccepted(ctx, now.Add(-s.cfg.DJResponseTimeout), now)
	if err != nil {
		return fmt.Errorf("list unaccepted bookings: %w", err)
	}
	s.each(ctx, "dj_response_timeout", ids, s.payments.RejectBooking)
	return nil
}

// EventStarted moves accepted bookings whose event has begun to SUCCESS.
func (s *Sweeper) EventStarted(ctx context.Context) error {
	ids, err := s.store.ListByStatusStartedBefore(ctx, models.BookingAcceptedByDJ, s.clock.Now())
	if err != nil {
		return fmt.Errorf("list started bookings: %w", err)
	}
	s.each(ctx, "event_started", ids, s.lifecycle.MarkSuccess)
	return nil
}

// Payout pays performers for SUCCESS bookings once the payout delay has passed.
func (s *Sweeper) Payout(ctx context.Context) error {
	ids, err := s.store.ListByStatusStartedBefore(ctx, models.BookingSuccess, s.clock.Now().Add(-s.cfg.PayoutDelay))
	if err != nil {
		return fmt.Errorf("list bookings to pay out: %w", err)
	}
	s.each(ctx, "payout", ids, s.payments.TransferMoneyForDJ)
	return nil
}

// RatingWindow closes rating for bookings that ended more than the window ago.
func (s *Sweeper) RatingWindow(ctx context.Context) error {
	n, err := s.store.DisableRatingEndedBefore(ctx, s.clock.Now().Add(-s.cfg.RatingWindow))
	if err != nil {
		return fmt.Errorf("disable rating: %w", err)
	}
	s.metrics.RecordSweep("rating_window", int(n), 0)
	if n > 0 {
		s.log.Info("rating window closed", "bookings", n)
	}
	return nil
}

type PaymentTimeoutWorker struct {
	river.WorkerDefaults[PaymentTimeoutArgs]
	s *Sweeper
}

func (w *PaymentTimeoutWorker) Work(ctx context.Context, _ *river.Job[PaymentTimeoutArgs]) error {
	return w.s.PaymentTimeout(ctx)
}

type DJResponseTimeoutWorker struct {
	river.WorkerDefaults[DJResponseTimeoutArgs]
	s *Sweeper
}

func (w *DJResponseTimeoutWorker) Work(ctx context.Context, _ *river.Job[DJResponseTimeoutArgs]) error {
	return w.s.DJResponseTimeout(ctx)
}

type EventStartedWorker struct {
	river.WorkerDefaults[EventStartedArgs]
	s *Sweeper
}

func (w *EventStartedWorker) Work(ctx context.Context, _ *river.Job[EventStartedArgs]) error {
	return w.s.EventStarted(ctx)
}

type PayoutWorker struct {
	river.WorkerDefaults[PayoutArgs]
	s *Sweeper
}

func (w *PayoutWorker) Work(ctx context.Context, _ *river.Job[PayoutArgs]) error {
	return w.s.Payout(ctx)
}

type RatingWindowWorker struct {
	river.WorkerDefaults[RatingWindowArgs]
	s *Sweeper
}

func (w *RatingWindowWorker) Work(ctx context.Context, _ *river.Job[RatingWindowArgs]) error {
	return w.s.RatingWindow(ctx)
}
