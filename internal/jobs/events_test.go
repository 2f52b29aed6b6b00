package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigbook/backend/internal/booking/bookingtest"
	"github.com/gigbook/backend/internal/models"
)

type notification struct {
	kind    models.BookingEvent
	account uuid.UUID
}

type mail struct {
	template   string
	recipients []string
}

type fakeOutbox struct {
	notes []notification
	mails []mail
	rooms []uuid.UUID
}

func (f *fakeOutbox) Notify(_ context.Context, kind models.BookingEvent, acc *models.Account, _ *models.Booking) error {
	f.notes = append(f.notes, notification{kind, acc.ID})
	return nil
}

func (f *fakeOutbox) Send(_ context.Context, template string, recipients []string, _ map[string]any) error {
	f.mails = append(f.mails, mail{template, recipients})
	return nil
}

func (f *fakeOutbox) CreateRoom(_ context.Context, b *models.Booking) error {
	f.rooms = append(f.rooms, b.ID)
	return nil
}

type fakeWithdrawals map[uuid.UUID]*models.Withdrawal

func (f fakeWithdrawals) GetByID(_ context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	if w, ok := f[id]; ok {
		return w, nil
	}
	return nil, models.ErrNotFound
}

type eventFixture struct {
	worker    *BookingEventWorker
	out       *fakeOutbox
	booker    *models.Account
	performer *models.Account
	booking   *models.Booking
}

func newEventFixture(wds fakeWithdrawals) *eventFixture {
	booker := &models.Account{ID: uuid.New(), Email: "booker@example.com", Role: models.RoleBooker}
	performer := &models.Account{ID: uuid.New(), Email: "dj@example.com", Role: models.RoleDJ}
	b := booking(models.BookingPaid, 0, 72*time.Hour)
	b.BookerID, b.PerformerID, b.CreatedByID = booker.ID, performer.ID, booker.ID
	b.PricePerHourCents = 17500
	out := &fakeOutbox{}
	w := NewBookingEventWorker(bookingtest.New(b), bookingtest.NewAccounts(booker, performer), wds, out, out, out, nil)
	return &eventFixture{worker: w, out: out, booker: booker, performer: performer, booking: b}
}

func work(t *testing.T, w *BookingEventWorker, event models.BookingEvent, id uuid.UUID) {
	t.Helper()
	workArgs(t, w, BookingEventArgs{Event: event, EntityPK: id})
}

func workArgs(t *testing.T, w *BookingEventWorker, args BookingEventArgs) {
	t.Helper()
	if err := w.Work(context.Background(), &river.Job[BookingEventArgs]{Args: args}); err != nil {
		t.Fatalf("Work(%s): %v", args.Event, err)
	}
}

func TestBookingCreatedNotifiesPerformer(t *testing.T) {
	f := newEventFixture(nil)
	work(t, f.worker, models.EventBookingCreated, f.booking.ID)

	if len(f.out.notes) != 1 || f.out.notes[0].account != f.performer.ID {
		t.Errorf("notes = %+v, want one for performer", f.out.notes)
	}
	if len(f.out.mails) != 1 || f.out.mails[0].template != TemplateBookingRequested {
		t.Errorf("mails = %+v", f.out.mails)
	}
}

func TestBookingPaidOpensChatRoom(t *testing.T) {
	f := newEventFixture(nil)
	work(t, f.worker, models.EventBookingPaid, f.booking.ID)

	if len(f.out.rooms) != 1 || f.out.rooms[0] != f.booking.ID {
		t.Errorf("rooms = %v", f.out.rooms)
	}
	if len(f.out.mails) != 1 || f.out.mails[0].recipients[0] != f.performer.Email {
		t.Errorf("mails = %+v, want performer email", f.out.mails)
	}
}

func TestBookingDeclinedNotifiesBothParties(t *testing.T) {
	f := newEventFixture(nil)
	work(t, f.worker, models.EventBookingDeclined, f.booking.ID)

	if len(f.out.notes) != 2 {
		t.Errorf("notes = %+v, want 2", f.out.notes)
	}
	if len(f.out.mails) != 1 || len(f.out.mails[0].recipients) != 2 {
		t.Errorf("mails = %+v", f.out.mails)
	}
}

func TestDeletedBookingIsSkipped(t *testing.T) {
	f := newEventFixture(nil)
	work(t, f.worker, models.EventBookingAccepted, uuid.New())
	if len(f.out.notes)+len(f.out.mails) != 0 {
		t.Errorf("side effects for missing booking: %+v", f.out)
	}
}

func TestWithdrawalPaidEmailsUser(t *testing.T) {
	wdID := uuid.New()
	f := newEventFixture(nil)
	f.worker.withdrawals = fakeWithdrawals{wdID: {ID: wdID, UserID: f.performer.ID, AmountCents: 5000}}
	work(t, f.worker, models.EventWithdrawalPaid, wdID)

	if len(f.out.mails) != 1 || f.out.mails[0].template != TemplateWithdrawalPaid || f.out.mails[0].recipients[0] != f.performer.Email {
		t.Errorf("mails = %+v", f.out.mails)
	}
}

func TestAwaitingAcceptanceReminder(t *testing.T) {
	f := newEventFixture(nil)

	workArgs(t, f.worker, BookingEventArgs{Event: models.EventAwaitingAcceptance, EntityPK: f.booking.ID, Hours: 12})
	if len(f.out.notes) != 1 || f.out.notes[0].account != f.performer.ID {
		t.Errorf("12h notes = %+v, want the performer only", f.out.notes)
	}

	workArgs(t, f.worker, BookingEventArgs{Event: models.EventAwaitingAcceptance, EntityPK: f.booking.ID, Hours: 24})
	if len(f.out.notes) != 3 {
		t.Errorf("notes = %+v, want both parties at 24h", f.out.notes)
	}
	last := f.out.mails[len(f.out.mails)-1]
	if last.template != TemplateAwaitingAcceptance || len(last.recipients) != 2 {
		t.Errorf("mail = %+v", last)
	}
}

func TestBeforeEventReminderSkipsUnacceptedBooking(t *testing.T) {
	f := newEventFixture(nil)

	workArgs(t, f.worker, BookingEventArgs{Event: models.EventBeforeEvent, EntityPK: f.booking.ID, Hours: 24})
	if len(f.out.notes) != 0 || len(f.out.mails) != 0 {
		t.Errorf("reminder sent for a PAID booking: %+v %+v", f.out.notes, f.out.mails)
	}
}

func TestFinalRatingReminder(t *testing.T) {
	f := newEventFixture(nil)

	workArgs(t, f.worker, BookingEventArgs{Event: models.EventRatingReminder, EntityPK: f.booking.ID, Hours: FinalRatingReminderHours})
	if len(f.out.notes) != 2 {
		t.Errorf("notes = %+v, want both parties", f.out.notes)
	}
	if len(f.out.mails) != 1 || f.out.mails[0].template != TemplateRatingFinalReminder {
		t.Errorf("mails = %+v", f.out.mails)
	}
}
