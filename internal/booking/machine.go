package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/pricing"
)

// transitions lists every status a booking may move to from a given status.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingNotPaid: {
		models.BookingPaid, models.BookingAcceptedByDJ,
		models.BookingDeclinedByBooker, models.BookingDeclinedByDJ, models.BookingDeclinedByStaff,
	},
	models.BookingPaid: {
		models.BookingAcceptedByDJ, models.BookingRejected,
		models.BookingDeclinedByBooker, models.BookingDeclinedByDJ, models.BookingDeclinedByStaff,
	},
	models.BookingAcceptedByDJ: {
		models.BookingSuccess, models.BookingCanceledByBooker, models.BookingCanceledByDJ,
	},
	models.BookingSuccess:   {models.BookingCompleted, models.BookingInDispute},
	models.BookingCompleted: {models.BookingInDispute},
	models.BookingInDispute: {models.BookingDisputed},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store is the booking persistence used by the state machine and service.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error)
	GetByPaymentIntentForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (*models.Booking, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListActiveByPerformerTx(ctx context.Context, tx pgx.Tx, performerID uuid.UUID) ([]*models.Booking, error)
	ListActiveByPerformer(ctx context.Context, performerID uuid.UUID) ([]*models.Booking, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Booking, error)
}

// ChangeStore persists the audit trail of tracked booking fields.
type ChangeStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.BookingChangeRecord) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.BookingChangeRecord, error)
}

// Machine owns every write to a booking row. Saves recompute the price
// snapshot and record changes of tracked fields in the same transaction.
type Machine struct {
	store   Store
	changes ChangeStore
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewMachine(store Store, changes ChangeStore, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{store: store, changes: changes, clock: clk, metrics: m, log: log}
}

type trackedField struct {
	name  string
	value string
}

func tracked(b *models.Booking) []trackedField {
	return []trackedField{
		{models.FieldStatus, string(b.Status)},
		{models.FieldDeclineComment, b.DeclineComment},
	}
}

// Transition moves b to status `to` and saves it.
func (m *Machine) Transition(ctx context.Context, tx pgx.Tx, b *models.Booking, to models.BookingStatus, actor models.Actor) error {
	return m.Update(ctx, tx, b, actor, func(b *models.Booking) error {
		return setStatus(b, to)
	})
}

// Decline moves b to the decline variant and stores the comment in one save.
func (m *Machine) Decline(ctx context.Context, tx pgx.Tx, b *models.Booking, to models.BookingStatus, comment string, actor models.Actor) error {
	return m.Update(ctx, tx, b, actor, func(b *models.Booking) error {
		if err := setStatus(b, to); err != nil {
			return err
		}
		b.DeclineComment = comment
		return nil
	})
}

func setStatus(b *models.Booking, to models.BookingStatus) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return nil
}

// Save persists b with a fresh price snapshot. It is Update without a mutation.
func (m *Machine) Save(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) error {
	return m.Update(ctx, tx, b, actor, nil)
}

// Update applies mutate to b, recomputes the price snapshot, persists the row
// and writes one change record per tracked field that changed.
func (m *Machine) Update(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor, mutate func(*models.Booking) error) error {
	before := tracked(b)
	if mutate != nil {
		if err := mutate(b); err != nil {
			return err
		}
	}
	pricing.Snapshot(b)
	if err := m.store.UpdateTx(ctx, tx, b); err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}

	after := tracked(b)
	for i := range before {
		if before[i].value == after[i].value {
			continue
		}
		if err := m.recordChange(ctx, tx, b.ID, before[i].name, before[i].value, after[i].value, actor); err != nil {
			return err
		}
		if before[i].name == models.FieldStatus {
			m.metrics.RecordTransition(before[i].value, after[i].value)
			m.log.Info("booking status changed", "booking_id", b.ID,
				"from", before[i].value, "to", after[i].value, "author_id", actor.AccountID)
		}
	}
	return nil
}

func (m *Machine) recordChange(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, field, before, after string, actor models.Actor) error {
	rec := &models.BookingChangeRecord{
		ID:        uuid.New(),
		BookingID: bookingID,
		Field:     field,
		Before:    before,
		After:     after,
		AuthorID:  actor.AccountID,
		IsStaff:   actor.IsStaff,
		CreatedAt: m.clock.Now(),
	}
	if err := m.changes.CreateTx(ctx, tx, rec); err != nil {
		return fmt.Errorf("record %s change: %w", field, err)
	}
	return nil
}
