package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gigbook/backend/internal/booking"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/payments"
	"github.com/gigbook/backend/internal/pricing"
)

// BookingService is the part of booking.Service the handler uses.
type BookingService interface {
	Create(ctx context.Context, actor models.Actor, in booking.CreateInput) (*models.Booking, error)
	Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error)
	List(ctx context.Context, actor models.Actor) ([]*models.Booking, error)
	Accept(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error)
	Decline(ctx context.Context, id uuid.UUID, actor models.Actor, comment string) (*models.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Booking, error)
	ApplyPromocode(ctx context.Context, id uuid.UUID, code string, actor models.Actor) (*models.Promocode, *models.Booking, error)
	BusyDates(ctx context.Context, performerID uuid.UUID) ([]time.Time, error)
	Changes(ctx context.Context, id uuid.UUID, actor models.Actor) ([]*models.BookingChangeRecord, error)
}

// BookingPayer starts a booking payment.
type BookingPayer interface {
	PayForBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*payments.PaymentResult, error)
}

// BookingHandler serves /api/v1/bookings and performer calendars.
type BookingHandler struct {
	Bookings BookingService
	Payer    BookingPayer
	Logger   *slog.Logger
}

type bookingResponse struct {
	*models.Booking
	PriceCents      int64 `json:"price"`
	DJEarningsCents int64 `json:"dj_earnings"`
}

func newBookingResponse(b *models.Booking) bookingResponse {
	return bookingResponse{Booking: b, PriceCents: pricing.Price(b), DJEarningsCents: pricing.DJEarnings(b)}
}

type createBookingRequest struct {
	BookerID    *uuid.UUID `json:"booker_id"`
	PerformerID uuid.UUID  `json:"performer_id"`
	EventStart  time.Time  `json:"event_start"`
	Duration    int        `json:"duration"`
}

// Create handles POST /api/v1/bookings. A performer booking on behalf of a
// booker passes booker_id; otherwise the caller is the booker.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decode(w, r, &req) {
		return
	}
	in := booking.CreateInput{
		BookerID:        a.AccountID,
		PerformerID:     req.PerformerID,
		EventStart:      req.EventStart,
		DurationMinutes: req.Duration,
	}
	if req.BookerID != nil {
		in.BookerID = *req.BookerID
	}
	b, err := h.Bookings.Create(r.Context(), a, in)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingResponse(b))
}

// List handles GET /api/v1/bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.Bookings.List(r.Context(), a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, newBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.Bookings.Get)
}

// Accept handles POST /api/v1/bookings/{id}/accept.
func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.Bookings.Accept)
}

// Cancel handles POST /api/v1/bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.Bookings.Cancel)
}

// Decline handles POST /api/v1/bookings/{id}/decline.
func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withBooking(w, r, func(ctx context.Context, id uuid.UUID, a models.Actor) (*models.Booking, error) {
		return h.Bookings.Decline(ctx, id, a, req.Comment)
	})
}

func (h *BookingHandler) withBooking(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, a models.Actor) (*models.Booking, error)) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), id, a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

// Pay handles POST /api/v1/bookings/{id}/pay. The response carries the client
// secret when the card share is non-zero.
func (h *BookingHandler) Pay(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Payer.PayForBooking(r.Context(), id, a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ApplyPromocode handles POST /api/v1/bookings/{id}/promocodes.
func (h *BookingHandler) ApplyPromocode(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, b, err := h.Bookings.ApplyPromocode(r.Context(), id, req.Code, a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"promocode": p,
		"booking":   newBookingResponse(b),
	})
}

// Changes handles GET /api/v1/bookings/{id}/changes (staff only).
func (h *BookingHandler) Changes(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.Bookings.Changes(r.Context(), id, a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// BusyDates handles GET /api/v1/performers/{id}/busy-dates.
func (h *BookingHandler) BusyDates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dates, err := h.Bookings.BusyDates(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(time.DateOnly))
	}
	writeJSON(w, http.StatusOK, map[string]any{"performer_id": id, "busy_dates": out})
}
