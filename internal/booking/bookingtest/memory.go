// Package bookingtest provides in-memory booking and account stores for tests.
package bookingtest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigbook/backend/internal/models"
)

// NoopTx satisfies pgx.Tx; the in-memory stores ignore it.
type NoopTx struct{}

func (NoopTx) Begin(context.Context) (pgx.Tx, error) { return NoopTx{}, nil }
func (NoopTx) Commit(context.Context) error          { return nil }
func (NoopTx) Rollback(context.Context) error        { return nil }
func (NoopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (NoopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (NoopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (NoopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (NoopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (NoopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (NoopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (NoopTx) Conn() *pgx.Conn { return nil }

// Store implements booking.Store and booking.ChangeStore in memory.
type Store struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
	// Commits counts committed transactions started through Begin.
	Commits int
}

func New(bookings ...*models.Booking) *Store {
	s := &Store{bookings: make(map[uuid.UUID]*models.Booking)}
	for _, b := range bookings {
		s.Put(b)
	}
	return s
}

type countingTx struct {
	NoopTx
	s *Store
}

func (t countingTx) Commit(context.Context) error {
	t.s.mu.Lock()
	t.s.Commits++
	t.s.mu.Unlock()
	return nil
}

func (s *Store) Begin(context.Context) (pgx.Tx, error) { return countingTx{s: s}, nil }

// Put stores a copy of b, overwriting any booking with the same ID.
func (s *Store) Put(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.AppliedDiscounts = append([]models.AppliedDiscount{}, b.AppliedDiscounts...)
	s.bookings[b.ID] = &cp
}

// Booking returns a copy of the stored booking, or nil.
func (s *Store) Booking(id uuid.UUID) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (s *Store) get(id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *b
	cp.AppliedDiscounts = append([]models.AppliedDiscount{}, b.AppliedDiscounts...)
	return &cp, nil
}

func (s *Store) CreateTx(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.Put(b)
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.get(id)
}

func (s *Store) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	return s.get(id)
}

func (s *Store) GetByPaymentIntentForUpdate(_ context.Context, _ pgx.Tx, intentID string) (*models.Booking, error) {
	s.mu.Lock()
	var id uuid.UUID
	for _, b := range s.bookings {
		if b.PaymentIntentID == intentID {
			id = b.ID
		}
	}
	s.mu.Unlock()
	if id == uuid.Nil {
		return nil, models.ErrNotFound
	}
	return s.get(id)
}

func (s *Store) UpdateTx(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	s.mu.Lock()
	_, ok := s.bookings[b.ID]
	s.mu.Unlock()
	if !ok {
		return models.ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	s.Put(b)
	return nil
}

func (s *Store) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookings, id)
	return nil
}

func (s *Store) list(match func(*models.Booking) bool) []*models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.bookings {
		if match(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func isActive(b *models.Booking) bool {
	for _, st := range models.ActiveBookingStatuses {
		if b.Status == st {
			return true
		}
	}
	return false
}

func (s *Store) ListActiveByPerformerTx(ctx context.Context, _ pgx.Tx, performerID uuid.UUID) ([]*models.Booking, error) {
	return s.ListActiveByPerformer(ctx, performerID)
}

func (s *Store) ListActiveByPerformer(_ context.Context, performerID uuid.UUID) ([]*models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.PerformerID == performerID && isActive(b) }), nil
}

func (s *Store) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.BookerID == accountID || b.PerformerID == accountID }), nil
}

// ListUnpaidCreatedBefore and the other sweep queries mirror the repository filters.
func (s *Store) ListUnpaidCreatedBefore(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	return ids(s.list(func(b *models.Booking) bool {
		return b.Status == models.BookingNotPaid && !b.CreatedAt.After(before)
	})), nil
}

func (s *Store) ListPaidUnaccepted(_ context.Context, createdBefore, now time.Time) ([]uuid.UUID, error) {
	return ids(s.list(func(b *models.Booking) bool {
		return b.Status == models.BookingPaid && (!b.CreatedAt.After(createdBefore) || !b.EventStart.After(now))
	})), nil
}

func (s *Store) ListByStatusStartedBefore(_ context.Context, status models.BookingStatus, before time.Time) ([]uuid.UUID, error) {
	return ids(s.list(func(b *models.Booking) bool {
		return b.Status == status && !b.EventStart.After(before)
	})), nil
}

func (s *Store) ListByStatusStartingBetween(_ context.Context, status models.BookingStatus, from, to time.Time) ([]uuid.UUID, error) {
	return ids(s.list(func(b *models.Booking) bool {
		return b.Status == status && !b.EventStart.Before(from) && b.EventStart.Before(to)
	})), nil
}

func (s *Store) ListRatableStartedBetween(_ context.Context, from, to time.Time) ([]uuid.UUID, error) {
	return ids(s.list(func(b *models.Booking) bool {
		return slices.Contains(models.RatableBookingStatuses, b.Status) && b.CanBeRated &&
			!b.EventStart.Before(from) && b.EventStart.Before(to)
	})), nil
}

func (s *Store) DisableRatingEndedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.bookings {
		if b.CanBeRated && !b.EventEnd().After(before) {
			b.CanBeRated = false
			n++
		}
	}
	return n, nil
}

func ids(list []*models.Booking) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

// ChangeLog implements booking.ChangeStore in memory.
type ChangeLog struct {
	mu      sync.Mutex
	records []*models.BookingChangeRecord
}

func NewChangeLog() *ChangeLog { return &ChangeLog{} }

func (l *ChangeLog) CreateTx(_ context.Context, _ pgx.Tx, c *models.BookingChangeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *c
	l.records = append(l.records, &cp)
	return nil
}

func (l *ChangeLog) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]*models.BookingChangeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.BookingChangeRecord
	for _, c := range l.records {
		if c.BookingID == bookingID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// All returns every recorded change in insertion order.
func (l *ChangeLog) All() []*models.BookingChangeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.BookingChangeRecord{}, l.records...)
}

// Accounts implements booking.Accounts in memory.
type Accounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func NewAccounts(accs ...*models.Account) *Accounts {
	a := &Accounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, acc := range accs {
		a.Put(acc)
	}
	return a
}

func (a *Accounts) Put(acc *models.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *acc
	a.accounts[acc.ID] = &cp
}

func (a *Accounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (a *Accounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return a.GetByID(ctx, id)
}
