package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gigbook/backend/internal/booking/bookingtest"
	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/models"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type mockPayments struct {
	refunded []uuid.UUID
	canceled []string
}

func (m *mockPayments) RefundBookingTx(_ context.Context, _ pgx.Tx, b *models.Booking, _ models.Actor) error {
	m.refunded = append(m.refunded, b.ID)
	return nil
}

func (m *mockPayments) CancelPaymentIntent(_ context.Context, intentID string) error {
	m.canceled = append(m.canceled, intentID)
	return nil
}

type mockPromocodes struct {
	promo *models.Promocode
	err   error
}

func (m *mockPromocodes) Validate(context.Context, pgx.Tx, string, uuid.UUID) (*models.Promocode, error) {
	return m.promo, m.err
}

func (m *mockPromocodes) Apply(_ context.Context, _ pgx.Tx, p *models.Promocode, b *models.Booking) (models.AppliedDiscount, error) {
	d := models.AppliedDiscount{PromocodeID: p.ID, PromocodeType: p.Type, Amount: p.Amount,
		PriceCents: 35000, CalculatedAmountCents: 1000, Date: now}
	b.AppliedDiscounts = append(b.AppliedDiscounts, d)
	return d, nil
}

type enqueued struct {
	event models.BookingEvent
	id    uuid.UUID
}

type fixture struct {
	svc       *Service
	store     *bookingtest.Store
	changes   *bookingtest.ChangeLog
	payments  *mockPayments
	promos    *mockPromocodes
	events    []enqueued
	booker    *models.Account
	performer *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     bookingtest.New(),
		changes:   bookingtest.NewChangeLog(),
		payments:  &mockPayments{},
		promos:    &mockPromocodes{},
		booker:    &models.Account{ID: uuid.New(), Role: models.RoleBooker},
		performer: &models.Account{ID: uuid.New(), Role: models.RoleDJ, PricePerHourCents: 10000},
	}
	clk := clock.Fixed(now)
	machine := NewMachine(f.store, f.changes, clk, nil, nil)
	enqueue := func(_ context.Context, _ pgx.Tx, ev models.BookingEvent, id uuid.UUID) error {
		f.events = append(f.events, enqueued{ev, id})
		return nil
	}
	f.svc = NewService(f.store, f.changes, machine, bookingtest.NewAccounts(f.booker, f.performer),
		f.payments, f.promos, enqueue, clk, Config{}, nil, nil)
	return f
}

func (f *fixture) seed(status models.BookingStatus) *models.Booking {
	b := &models.Booking{
		ID:                uuid.New(),
		BookerID:          f.booker.ID,
		PerformerID:       f.performer.ID,
		CreatedByID:       f.booker.ID,
		EventStart:        now.Add(72 * time.Hour),
		DurationMinutes:   180,
		PricePerHourCents: 1000,
		Status:            status,
		CreatedAt:         now.Add(-time.Hour),
	}
	f.store.Put(b)
	return b
}

func (f *fixture) bookerActor() models.Actor    { return models.Actor{AccountID: f.booker.ID} }
func (f *fixture) performerActor() models.Actor { return models.Actor{AccountID: f.performer.ID} }

func wantValidation(t *testing.T, err error, code string) {
	t.Helper()
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError %q, got %v", code, err)
	}
	if ve.Code != code {
		t.Errorf("code = %q, want %q", ve.Code, code)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.BookingStatus
		want     bool
	}{
		{models.BookingNotPaid, models.BookingPaid, true},
		{models.BookingNotPaid, models.BookingDeclinedByStaff, true},
		{models.BookingPaid, models.BookingRejected, true},
		{models.BookingPaid, models.BookingCanceledByBooker, false},
		{models.BookingAcceptedByDJ, models.BookingCanceledByDJ, true},
		{models.BookingAcceptedByDJ, models.BookingDeclinedByDJ, false},
		{models.BookingSuccess, models.BookingCompleted, true},
		{models.BookingCompleted, models.BookingPaid, false},
		{models.BookingRejected, models.BookingPaid, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreate_SnapshotsPerformerRate(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Create(context.Background(), f.bookerActor(), CreateInput{
		BookerID:        f.booker.ID,
		PerformerID:     f.performer.ID,
		EventStart:      now.Add(24 * time.Hour),
		DurationMinutes: 240,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != models.BookingNotPaid {
		t.Errorf("status = %s, want NOT_PAID", b.Status)
	}
	// (4h + 1h setup) * $100 = $500
	if b.PricePerHourCents != 10000 || b.BookerFeeCents != 2500 || b.DJFeeCents != 5000 {
		t.Errorf("snapshot = rate %d, booker fee %d, dj fee %d", b.PricePerHourCents, b.BookerFeeCents, b.DJFeeCents)
	}
	if f.store.Booking(b.ID) == nil {
		t.Error("booking not stored")
	}
	if len(f.events) != 1 || f.events[0].event != models.EventBookingCreated {
		t.Errorf("events = %+v", f.events)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(models.BookingPaid)
	existing.EventStart = time.Date(2026, 5, 20, 22, 0, 0, 0, time.UTC)
	existing.DurationMinutes = 240
	f.store.Put(existing)

	declined := f.seed(models.BookingDeclinedByDJ)
	declined.EventStart = time.Date(2026, 5, 25, 20, 0, 0, 0, time.UTC)
	f.store.Put(declined)

	base := CreateInput{BookerID: f.booker.ID, PerformerID: f.performer.ID, DurationMinutes: 120}

	in := base
	in.EventStart = now.Add(90 * time.Minute)
	_, err := f.svc.Create(context.Background(), f.bookerActor(), in)
	wantValidation(t, err, models.CodeTooSoon)

	in = base
	in.EventStart = now.Add(48 * time.Hour)
	in.DurationMinutes = 30
	_, err = f.svc.Create(context.Background(), f.bookerActor(), in)
	wantValidation(t, err, models.CodeDurationTooShort)

	// the existing gig spills past midnight into the 21st
	in = base
	in.EventStart = time.Date(2026, 5, 21, 18, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(context.Background(), f.bookerActor(), in)
	wantValidation(t, err, models.CodeDateConflict)

	// declined bookings do not block the calendar
	in = base
	in.EventStart = time.Date(2026, 5, 25, 18, 0, 0, 0, time.UTC)
	if _, err := f.svc.Create(context.Background(), f.bookerActor(), in); err != nil {
		t.Errorf("Create over declined booking: %v", err)
	}

	in = base
	in.EventStart = now.Add(48 * time.Hour)
	_, err = f.svc.Create(context.Background(), models.Actor{AccountID: uuid.New()}, in)
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger create: got %v, want ErrForbidden", err)
	}
}

func TestCreate_RunningGigBlocksItsDays(t *testing.T) {
	f := newFixture(t)
	running := f.seed(models.BookingSuccess)
	running.EventStart = now.Add(-30 * time.Minute)
	running.DurationMinutes = 24 * 60
	f.store.Put(running)

	_, err := f.svc.Create(context.Background(), f.bookerActor(), CreateInput{
		BookerID:        f.booker.ID,
		PerformerID:     f.performer.ID,
		EventStart:      now.Add(3 * time.Hour),
		DurationMinutes: 120,
	})
	wantValidation(t, err, models.CodeDateConflict)

	dates, err := f.svc.BusyDates(context.Background(), f.performer.ID)
	if err != nil {
		t.Fatalf("BusyDates: %v", err)
	}
	if len(dates) == 0 || dates[0].Format(time.DateOnly) != "2026-05-10" {
		t.Errorf("dates = %v, want the running gig's day first", dates)
	}
}

func TestCreate_ConflictAcrossTimeZones(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(models.BookingPaid)
	existing.EventStart = time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	existing.DurationMinutes = 60
	f.store.Put(existing)

	// 00:30 on July 11 at UTC+2 is still July 10 in UTC.
	_, err := f.svc.Create(context.Background(), f.bookerActor(), CreateInput{
		BookerID:        f.booker.ID,
		PerformerID:     f.performer.ID,
		EventStart:      time.Date(2026, 7, 11, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60)),
		DurationMinutes: 60,
	})
	wantValidation(t, err, models.CodeDateConflict)
}

func TestAccept_PerformerOnly(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingPaid)

	if _, err := f.svc.Accept(context.Background(), b.ID, f.bookerActor()); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("booker accept: got %v, want ErrForbidden", err)
	}
	got, err := f.svc.Accept(context.Background(), b.ID, f.performerActor())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got.Status != models.BookingAcceptedByDJ {
		t.Errorf("status = %s", got.Status)
	}
	changes := f.changes.All()
	if len(changes) != 1 || changes[0].Before != "PAID" || changes[0].After != "ACCEPTED_BY_DJ" ||
		changes[0].AuthorID != f.performer.ID {
		t.Errorf("changes = %+v", changes)
	}
}

func TestDecline_ActorPicksVariant(t *testing.T) {
	f := newFixture(t)
	staff := models.Actor{AccountID: uuid.New(), IsStaff: true}
	tests := []struct {
		actor models.Actor
		want  models.BookingStatus
	}{
		{f.bookerActor(), models.BookingDeclinedByBooker},
		{f.performerActor(), models.BookingDeclinedByDJ},
		{staff, models.BookingDeclinedByStaff},
	}
	for _, tt := range tests {
		b := f.seed(models.BookingNotPaid)
		got, err := f.svc.Decline(context.Background(), b.ID, tt.actor, "no longer needed")
		if err != nil {
			t.Fatalf("Decline: %v", err)
		}
		if got.Status != tt.want || got.DeclineComment != "no longer needed" {
			t.Errorf("got %s %q, want %s", got.Status, got.DeclineComment, tt.want)
		}
	}
}

func TestDecline_PaidRefunds(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingPaid)

	if _, err := f.svc.Decline(context.Background(), b.ID, f.performerActor(), "sick"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if len(f.payments.refunded) != 1 || f.payments.refunded[0] != b.ID {
		t.Errorf("refunded = %v", f.payments.refunded)
	}
	// status and comment each produce one audit record
	var fields []string
	for _, c := range f.changes.All() {
		fields = append(fields, c.Field)
	}
	if len(fields) != 2 || fields[0] != models.FieldStatus || fields[1] != models.FieldDeclineComment {
		t.Errorf("changed fields = %v", fields)
	}
}

func TestDecline_UnpaidCancelsIntent(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingNotPaid)
	b.PaymentIntentID = "pi_123"
	f.store.Put(b)

	if _, err := f.svc.Decline(context.Background(), b.ID, f.bookerActor(), ""); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if len(f.payments.canceled) != 1 || f.payments.canceled[0] != "pi_123" {
		t.Errorf("canceled = %v", f.payments.canceled)
	}
	if len(f.payments.refunded) != 0 {
		t.Errorf("unexpected refund %v", f.payments.refunded)
	}
}

func TestDecline_WrongStatus(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingAcceptedByDJ)
	_, err := f.svc.Decline(context.Background(), b.ID, f.bookerActor(), "")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if f.store.Booking(b.ID).Status != models.BookingAcceptedByDJ {
		t.Error("status changed on rejected decline")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	b := f.seed(models.BookingPaid)
	if _, err := f.svc.Cancel(context.Background(), b.ID, f.bookerActor()); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("cancel PAID: got %v, want ErrInvalidTransition", err)
	}

	b = f.seed(models.BookingAcceptedByDJ)
	got, err := f.svc.Cancel(context.Background(), b.ID, f.bookerActor())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.BookingCanceledByBooker {
		t.Errorf("status = %s", got.Status)
	}

	b = f.seed(models.BookingAcceptedByDJ)
	got, err = f.svc.Cancel(context.Background(), b.ID, f.performerActor())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.BookingCanceledByDJ {
		t.Errorf("status = %s", got.Status)
	}
	if len(f.payments.refunded) != 2 {
		t.Errorf("refunds = %d, want 2", len(f.payments.refunded))
	}
}

func TestApplyPromocode_RecomputesFees(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingNotPaid)
	f.promos.promo = &models.Promocode{ID: uuid.New(), Code: "TEN", Type: models.PromocodeFixed,
		Amount: decimal.NewFromInt(10), IsActive: true}

	p, got, err := f.svc.ApplyPromocode(context.Background(), b.ID, "TEN", f.bookerActor())
	if err != nil {
		t.Fatalf("ApplyPromocode: %v", err)
	}
	if p.Code != "TEN" {
		t.Errorf("promocode = %s", p.Code)
	}
	if got.BookerFeeCents != 1700 || got.DJFeeCents != 3400 {
		t.Errorf("fees = %d/%d, want 1700/3400", got.BookerFeeCents, got.DJFeeCents)
	}
	if stored := f.store.Booking(b.ID); len(stored.AppliedDiscounts) != 1 {
		t.Errorf("stored discounts = %d", len(stored.AppliedDiscounts))
	}
}

func TestApplyPromocode_Guards(t *testing.T) {
	f := newFixture(t)
	paid := f.seed(models.BookingPaid)
	if _, _, err := f.svc.ApplyPromocode(context.Background(), paid.ID, "X", f.bookerActor()); !errors.Is(err, models.ErrAlreadyPaid) {
		t.Errorf("paid booking: got %v, want ErrAlreadyPaid", err)
	}

	b := f.seed(models.BookingNotPaid)
	if _, _, err := f.svc.ApplyPromocode(context.Background(), b.ID, "X", f.performerActor()); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("performer: got %v, want ErrForbidden", err)
	}

	f.promos.err = models.NewValidationError("code", models.CodeExpired, "expired")
	_, _, err := f.svc.ApplyPromocode(context.Background(), b.ID, "OLD", f.bookerActor())
	wantValidation(t, err, models.CodeExpired)
}

func TestBusyDates(t *testing.T) {
	f := newFixture(t)
	b1 := f.seed(models.BookingAcceptedByDJ)
	b1.EventStart = time.Date(2026, 6, 2, 22, 0, 0, 0, time.UTC)
	b1.DurationMinutes = 180
	f.store.Put(b1)
	b2 := f.seed(models.BookingNotPaid)
	b2.EventStart = time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	b2.DurationMinutes = 60
	f.store.Put(b2)
	done := f.seed(models.BookingCompleted)
	done.EventStart = time.Date(2026, 6, 10, 20, 0, 0, 0, time.UTC)
	f.store.Put(done)
	declined := f.seed(models.BookingDeclinedByBooker)
	declined.EventStart = time.Date(2026, 6, 15, 20, 0, 0, 0, time.UTC)
	f.store.Put(declined)

	dates, err := f.svc.BusyDates(context.Background(), f.performer.ID)
	if err != nil {
		t.Fatalf("BusyDates: %v", err)
	}
	want := []string{"2026-06-01", "2026-06-02", "2026-06-03", "2026-06-10"}
	if len(dates) != len(want) {
		t.Fatalf("dates = %v, want %v", dates, want)
	}
	for i, d := range dates {
		if d.Format(time.DateOnly) != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, d.Format(time.DateOnly), want[i])
		}
	}
}

func TestGet_HidesForeignBookings(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingNotPaid)
	if _, err := f.svc.Get(context.Background(), b.ID, models.Actor{AccountID: uuid.New()}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("stranger: got %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Get(context.Background(), b.ID, models.Actor{AccountID: uuid.New(), IsStaff: true}); err != nil {
		t.Errorf("staff: %v", err)
	}
}

func TestChanges_StaffOnly(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingNotPaid)
	if _, err := f.svc.Accept(context.Background(), b.ID, f.performerActor()); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := f.svc.Changes(context.Background(), b.ID, f.bookerActor()); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("booker: got %v, want ErrForbidden", err)
	}
	list, err := f.svc.Changes(context.Background(), b.ID, models.Actor{AccountID: uuid.New(), IsStaff: true})
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(list) != 1 || list[0].After != string(models.BookingAcceptedByDJ) {
		t.Errorf("changes = %+v", list)
	}
}
