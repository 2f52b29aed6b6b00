// Package booking implements the booking lifecycle: creation with calendar
// checks, the status state machine and the booker/performer operations on it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/pricing"
	"github.com/gigbook/backend/internal/promocode"
)

const (
	DefaultMinDurationMinutes = 60
	DefaultMinLeadTime        = 2 * time.Hour
)

// Accounts reads the parties of a booking.
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// Payments is the part of the payment orchestrator decline and cancel depend on.
type Payments interface {
	RefundBookingTx(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) error
	CancelPaymentIntent(ctx context.Context, intentID string) error
}

// Promocodes validates and applies discount codes.
type Promocodes interface {
	Validate(ctx context.Context, tx pgx.Tx, code string, bookingID uuid.UUID) (*models.Promocode, error)
	Apply(ctx context.Context, tx pgx.Tx, p *models.Promocode, b *models.Booking) (models.AppliedDiscount, error)
}

var _ Promocodes = (*promocode.Engine)(nil)

type Config struct {
	MinDurationMinutes int
	MinLeadTime        time.Duration
}

// CreateInput is a booking request. Either party may create it for the other.
type CreateInput struct {
	BookerID        uuid.UUID
	PerformerID     uuid.UUID
	EventStart      time.Time
	DurationMinutes int
}

type Service struct {
	store      Store
	changes    ChangeStore
	machine    *Machine
	accounts   Accounts
	payments   Payments
	promocodes Promocodes
	enqueue    models.EnqueueEventTxFunc
	clock      clock.Clock
	cfg        Config
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewService(store Store, changes ChangeStore, machine *Machine, accounts Accounts, payments Payments,
	promocodes Promocodes, enqueue models.EnqueueEventTxFunc, clk clock.Clock, cfg Config,
	m *metrics.Metrics, log *slog.Logger) *Service {
	if cfg.MinDurationMinutes <= 0 {
		cfg.MinDurationMinutes = DefaultMinDurationMinutes
	}
	if cfg.MinLeadTime <= 0 {
		cfg.MinLeadTime = DefaultMinLeadTime
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store, changes: changes, machine: machine, accounts: accounts, payments: payments,
		promocodes: promocodes, enqueue: enqueue, clock: clk, cfg: cfg, metrics: m, log: log,
	}
}

// Create validates duration, lead time and calendar conflicts, then stores a
// NOT_PAID booking priced from the performer's current hourly rate.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Booking, error) {
	if !actor.IsStaff && actor.AccountID != in.BookerID && actor.AccountID != in.PerformerID {
		return nil, models.ErrForbidden
	}
	if in.BookerID == in.PerformerID {
		return nil, models.NewValidationError("performer_id", models.CodeInvalidCode, "booker and performer must differ")
	}
	if in.DurationMinutes < s.cfg.MinDurationMinutes {
		return nil, models.NewValidationError("duration", models.CodeDurationTooShort,
			fmt.Sprintf("duration must be at least %d minutes", s.cfg.MinDurationMinutes))
	}
	if in.EventStart.Before(s.clock.Now().Add(s.cfg.MinLeadTime)) {
		return nil, models.NewValidationError("event_start", models.CodeTooSoon,
			fmt.Sprintf("event must start at least %s from now", s.cfg.MinLeadTime))
	}
	if _, err := s.accounts.GetByID(ctx, in.BookerID); err != nil {
		return nil, fmt.Errorf("get booker: %w", err)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The performer row lock serializes concurrent bookings of one calendar.
	performer, err := s.accounts.GetByIDForUpdate(ctx, tx, in.PerformerID)
	if err != nil {
		return nil, fmt.Errorf("get performer: %w", err)
	}
	if performer.Role != models.RoleDJ {
		return nil, models.NewValidationError("performer_id", models.CodeInvalidCode, "account is not a performer")
	}

	active, err := s.store.ListActiveByPerformerTx(ctx, tx, in.PerformerID)
	if err != nil {
		return nil, fmt.Errorf("list performer bookings: %w", err)
	}
	wanted := pricing.BusyDates(in.EventStart.UTC(), in.DurationMinutes)
	for _, other := range active {
		if pricing.Overlaps(wanted, pricing.BusyDates(other.EventStart, other.DurationMinutes)) {
			return nil, models.NewValidationError("event_start", models.CodeDateConflict, "performer is busy on this date")
		}
	}

	b := &models.Booking{
		ID:                uuid.New(),
		BookerID:          in.BookerID,
		PerformerID:       in.PerformerID,
		CreatedByID:       actor.AccountID,
		EventStart:        in.EventStart.UTC(),
		DurationMinutes:   in.DurationMinutes,
		PricePerHourCents: performer.PricePerHourCents,
		AppliedDiscounts:  []models.AppliedDiscount{},
		Status:            models.BookingNotPaid,
		CanBeRated:        true,
	}
	pricing.Snapshot(b)
	if err := s.store.CreateTx(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if err := s.enqueue(ctx, tx, models.EventBookingCreated, b.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.metrics.RecordBookingCreated()
	s.log.Info("booking created", "booking_id", b.ID, "performer_id", b.PerformerID, "price_cents", pricing.Price(b))
	return b, nil
}

// Get returns a booking visible to actor.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(b, actor) {
		return nil, models.ErrNotFound
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	return s.store.ListByAccount(ctx, actor.AccountID)
}

// Accept lets the performer confirm a NOT_PAID or PAID booking.
func (s *Service) Accept(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error) {
	return s.withLockedBooking(ctx, id, func(tx pgx.Tx, b *models.Booking) error {
		if actor.AccountID != b.PerformerID {
			return models.ErrForbidden
		}
		if err := s.machine.Transition(ctx, tx, b, models.BookingAcceptedByDJ, actor); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, models.EventBookingAccepted, b.ID)
	})
}

// MarkSuccess moves an accepted booking whose event has started to SUCCESS.
// Bookings already past ACCEPTED_BY_DJ are left alone.
func (s *Service) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.withLockedBooking(ctx, id, func(tx pgx.Tx, b *models.Booking) error {
		if b.Status != models.BookingAcceptedByDJ {
			return nil
		}
		return s.machine.Transition(ctx, tx, b, models.BookingSuccess, models.SystemActor)
	})
	return err
}

// DeclineStatus picks the decline variant for actor.
func DeclineStatus(b *models.Booking, actor models.Actor) models.BookingStatus {
	switch actor.AccountID {
	case b.BookerID:
		return models.BookingDeclinedByBooker
	case b.PerformerID:
		return models.BookingDeclinedByDJ
	}
	return models.BookingDeclinedByStaff
}

// CancelStatus picks the cancel variant for actor.
func CancelStatus(b *models.Booking, actor models.Actor) models.BookingStatus {
	if actor.AccountID == b.BookerID {
		return models.BookingCanceledByBooker
	}
	return models.BookingCanceledByDJ
}

// Decline ends a NOT_PAID or PAID booking. A paid booking is refunded; an
// outstanding card payment is canceled with the provider.
func (s *Service) Decline(ctx context.Context, id uuid.UUID, actor models.Actor, comment string) (*models.Booking, error) {
	return s.withLockedBooking(ctx, id, func(tx pgx.Tx, b *models.Booking) error {
		if !canView(b, actor) {
			return models.ErrForbidden
		}
		if b.Status != models.BookingNotPaid && b.Status != models.BookingPaid {
			return fmt.Errorf("%w: cannot decline a %s booking", models.ErrInvalidTransition, b.Status)
		}
		wasPaid := b.Status == models.BookingPaid
		if err := s.machine.Decline(ctx, tx, b, DeclineStatus(b, actor), comment, actor); err != nil {
			return err
		}
		if wasPaid {
			if err := s.payments.RefundBookingTx(ctx, tx, b, actor); err != nil {
				return err
			}
		} else if b.PaymentIntentID != "" {
			if err := s.payments.CancelPaymentIntent(ctx, b.PaymentIntentID); err != nil {
				return err
			}
		}
		return s.enqueue(ctx, tx, models.EventBookingDeclined, b.ID)
	})
}

// Cancel ends an ACCEPTED_BY_DJ booking. The booker is refunded only if the
// booking was paid before it was accepted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error) {
	return s.withLockedBooking(ctx, id, func(tx pgx.Tx, b *models.Booking) error {
		if !canView(b, actor) {
			return models.ErrForbidden
		}
		if b.Status != models.BookingAcceptedByDJ {
			return fmt.Errorf("%w: cannot cancel a %s booking", models.ErrInvalidTransition, b.Status)
		}
		if err := s.machine.Transition(ctx, tx, b, CancelStatus(b, actor), actor); err != nil {
			return err
		}
		if err := s.payments.RefundBookingTx(ctx, tx, b, actor); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, models.EventBookingCanceled, b.ID)
	})
}

// ApplyPromocode validates code against an unpaid booking and applies it.
func (s *Service) ApplyPromocode(ctx context.Context, id uuid.UUID, code string, actor models.Actor) (*models.Promocode, *models.Booking, error) {
	var applied *models.Promocode
	b, err := s.withLockedBooking(ctx, id, func(tx pgx.Tx, b *models.Booking) error {
		if !actor.IsStaff && actor.AccountID != b.BookerID {
			return models.ErrForbidden
		}
		if b.Status != models.BookingNotPaid {
			return models.ErrAlreadyPaid
		}
		p, err := s.promocodes.Validate(ctx, tx, code, b.ID)
		if err != nil {
			return err
		}
		if _, err := s.promocodes.Apply(ctx, tx, p, b); err != nil {
			return err
		}
		applied = p
		return s.machine.Save(ctx, tx, b, actor)
	})
	if err != nil {
		return nil, nil, err
	}
	return applied, b, nil
}

// BusyDates lists the calendar days blocked by the performer's active bookings.
func (s *Service) BusyDates(ctx context.Context, performerID uuid.UUID) ([]time.Time, error) {
	active, err := s.store.ListActiveByPerformer(ctx, performerID)
	if err != nil {
		return nil, err
	}
	seen := make(map[time.Time]bool)
	dates := []time.Time{}
	for _, b := range active {
		for _, d := range pricing.BusyDates(b.EventStart, b.DurationMinutes) {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates, nil
}

// Changes returns the audit trail of a booking. Staff only.
func (s *Service) Changes(ctx context.Context, id uuid.UUID, actor models.Actor) ([]*models.BookingChangeRecord, error) {
	if !actor.IsStaff {
		return nil, models.ErrForbidden
	}
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.changes.ListByBooking(ctx, id)
}

func (s *Service) withLockedBooking(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx, b *models.Booking) error) (*models.Booking, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := s.store.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}
	if err := fn(tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func canView(b *models.Booking, actor models.Actor) bool {
	return actor.IsStaff || actor.AccountID == b.BookerID || actor.AccountID == b.PerformerID
}
